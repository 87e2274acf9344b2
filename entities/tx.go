package entities

import "github.com/shopspring/decimal"

// Tx is a single transaction of the tracked account. Amounts are in nanotons.
type Tx struct {
	Hash      string          `json:"hash"`
	LT        uint64          `json:"lt,string"`
	Timestamp int64           `json:"timestamp"`
	Fee       decimal.Decimal `json:"fee"`
	In        *Transfer       `json:"in,omitempty"`
	Out       []Transfer      `json:"out,omitempty"`
}

type Transfer struct {
	Address string          `json:"address"`
	Value   decimal.Decimal `json:"value"`
}

// Valid reports whether the transaction can take part in deduplication.
func (tx Tx) Valid() bool {
	return tx.Hash != ""
}
