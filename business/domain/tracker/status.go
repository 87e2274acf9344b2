package tracker

import "time"

type Mode int32

const (
	ModeSeeding Mode = iota
	ModeEvent
	ModePoll
)

func (m Mode) String() string {
	switch m {
	case ModeSeeding:
		return "seeding"
	case ModeEvent:
		return "event"
	case ModePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Status is a point in time copy of the detector state.
type Status struct {
	Account               string    `json:"account"`
	Mode                  string    `json:"mode"`
	Watermark             uint64    `json:"watermark,string"`
	HasWatermark          bool      `json:"hasWatermark"`
	SeenTransactions      int       `json:"seenTransactions"`
	DeliveredTransactions uint64    `json:"deliveredTransactions"`
	ConsecutiveErrors     uint      `json:"consecutiveErrors"`
	LastCycle             time.Time `json:"lastCycle"`
}
