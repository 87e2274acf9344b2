package kafka

import (
	"context"
	"encoding/json"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Client forwards new transactions to the default produce topic. Records are
// keyed by account so that they stay ordered within one partition.
type Client struct {
	kcl     KafkaClient
	account string
}

func NewClient(kafkaClient KafkaClient, account string) *Client {
	return &Client{
		kcl:     kafkaClient,
		account: account,
	}
}

type txMessage struct {
	Account string `json:"account"`
	entities.Tx
}

func (kc *Client) Deliver(ctx context.Context, tx entities.Tx) error {
	record, err := createTxRecord(kc.account, tx)
	if err != nil {
		return err
	}

	produced := make(chan error, 1)
	kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
		produced <- err
	})

	select {
	case err = <-produced:
	case <-ctx.Done():
		// the promise still fires once the client gives up on the record
		return errors.Wrapf(ctx.Err(), "producing record for transaction [%s]", tx.Hash)
	}
	if err != nil {
		return errors.Wrapf(err, "producing record for transaction [%s]", tx.Hash)
	}
	return nil
}

func createTxRecord(account string, tx entities.Tx) (*kgo.Record, error) {
	payload, err := json.Marshal(txMessage{Account: account, Tx: tx})
	if err != nil {
		return nil, errors.Wrap(err, "marshalling transaction to json")
	}

	return &kgo.Record{
		Key:   []byte(account),
		Value: payload,
	}, nil
}
