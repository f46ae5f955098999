package model

import "time"

type EventKind string

const (
	EventTokensListed    EventKind = "TokensListed"
	EventTokensPurchased EventKind = "TokensPurchased"
	EventTokensSold      EventKind = "TokensSold"
	EventPayoutSettled   EventKind = "PayoutSettled"
)

// Event is emitted by the exchange after an invocation commits. Token ids
// and amounts are rendered so subscribers do not need the numeric widths.
type Event struct {
	Kind         EventKind      `json:"kind"`
	Token        string         `json:"token"`
	Owner        AccountAddress `json:"owner"`
	Counterparty *Address       `json:"counterparty,omitempty"`
	Price        Amount         `json:"price,omitempty"`
	CCDAmount    Amount         `json:"ccd_amount,omitempty"`
	TokenAmount  uint64         `json:"tokens_amount"`
	Intent       string         `json:"intent,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
