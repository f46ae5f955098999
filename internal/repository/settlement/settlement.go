// Package settlement journals liquidation payouts. The journal lives outside
// the invocation state so an escrow that was not paid out survives the
// rollback of the invocation that created it.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State uint8

const (
	Reserved State = iota + 1
	Escrowed
	Settled
	Released
)

func (s State) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case Escrowed:
		return "escrowed"
	case Settled:
		return "settled"
	case Released:
		return "released"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

var (
	ErrIntentNotFound = errors.New("settlement intent not found")
	ErrStateConflict  = errors.New("settlement intent is not in the expected state")
)

// --- Model corresponding to the settlement_intents table ---
type Intent struct {
	ID               uuid.UUID `db:"id" json:"id"`
	TokenID          string    `db:"token_id" json:"token_id"`
	ContractIndex    uint64    `db:"contract_index" json:"contract_index"`
	ContractSubindex uint64    `db:"contract_subindex" json:"contract_subindex"`
	Owner            string    `db:"owner" json:"owner"`
	Quantity         uint64    `db:"quantity" json:"quantity"`
	Payout           uint64    `db:"payout" json:"payout"`
	State            State     `db:"state" json:"state"`
	LastError        string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Listing names the listing an intent liquidates.
type Listing struct {
	TokenID          string
	ContractIndex    uint64
	ContractSubindex uint64
	Owner            string
}

func (i Intent) Listing() Listing {
	return Listing{TokenID: i.TokenID, ContractIndex: i.ContractIndex, ContractSubindex: i.ContractSubindex, Owner: i.Owner}
}

// Open reports whether the intent still holds listed units.
func (s State) Open() bool { return s == Reserved || s == Escrowed }

// Page selects up to Limit intents that sort after the cursor. A zero cursor
// starts at the oldest intent; a zero Limit is unbounded.
type Page struct {
	AfterCreatedAt time.Time
	AfterID        uuid.UUID
	Limit          int
}

// Next is the page following last.
func (p Page) Next(last Intent) Page {
	return Page{AfterCreatedAt: last.CreatedAt, AfterID: last.ID, Limit: p.Limit}
}

func (p Page) after(i Intent) bool {
	if p.AfterCreatedAt.IsZero() && p.AfterID == uuid.Nil {
		return true
	}
	if !i.CreatedAt.Equal(p.AfterCreatedAt) {
		return i.CreatedAt.After(p.AfterCreatedAt)
	}
	return i.ID.String() > p.AfterID.String()
}

// --- Journal Interface ---
type Journal interface {
	// Reserve stores intent in the Reserved state under a fresh id.
	Reserve(ctx context.Context, intent Intent) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*Intent, error)
	// Transition moves an intent from one state to another and records
	// lastError. It fails with ErrStateConflict when the intent is not in
	// state from.
	Transition(ctx context.Context, id uuid.UUID, from, to State, lastError string) error
	// ListByState returns the page of intents in state ordered by creation
	// time, then id.
	ListByState(ctx context.Context, state State, page Page) ([]Intent, error)
	// Outstanding sums the quantity of the Reserved and Escrowed intents of
	// a listing.
	Outstanding(ctx context.Context, listing Listing) (uint64, error)
}
