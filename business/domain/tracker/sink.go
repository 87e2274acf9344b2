package tracker

import (
	"context"
	"errors"
	"github.com/Aero25x/ton-wallet-tracker/entities"
)

// Sink receives every new transaction exactly once, oldest first.
type Sink interface {
	Deliver(ctx context.Context, tx entities.Tx) error
}

// Sinks delivers to all contained sinks in order. One failing sink does not
// stop the others.
type Sinks []Sink

func (s Sinks) Deliver(ctx context.Context, tx entities.Tx) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Deliver(ctx, tx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
