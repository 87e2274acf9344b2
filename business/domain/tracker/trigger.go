package tracker

import (
	"context"
	"github.com/pkg/errors"
	"time"
)

// Trigger tells the detector when the account needs to be checked again.
type Trigger interface {
	// Next blocks until a check is due. An error means the trigger is broken
	// and will not fire again.
	Next(ctx context.Context) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, account string) (Subscription, error)
}

// Subscription is a live notification channel for one account.
type Subscription interface {
	// Signals delivers account change notifications. It holds at most one
	// pending signal, so notifications during a running check collapse into
	// one follow up check.
	Signals() <-chan struct{}
	// Errors receives the failure that ended the subscription.
	Errors() <-chan error
	Close() error
}

type intervalTrigger struct {
	interval time.Duration
}

func (t intervalTrigger) Next(ctx context.Context) error {
	return sleep(ctx, t.interval)
}

// subscriptionTrigger fires on notifications and, as a safety net for missed
// notifications, after safetyInterval of silence.
type subscriptionTrigger struct {
	sub            Subscription
	safetyInterval time.Duration
}

func (t subscriptionTrigger) Next(ctx context.Context) error {
	var safety <-chan time.Time
	if t.safetyInterval > 0 {
		timer := time.NewTimer(t.safetyInterval)
		defer timer.Stop()
		safety = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.sub.Signals():
		return nil
	case <-safety:
		return nil
	case err := <-t.sub.Errors():
		if err == nil {
			err = errors.New("subscription closed")
		}
		return errors.Wrap(err, "subscription lost")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
