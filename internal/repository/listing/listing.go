// Package listing holds the exchange's listing store: a mapping from
// (token identity, owner) to (price, quantity).
package listing

import (
	"context"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// Repository is the set of operations an entry point performs on listings
// inside one invocation.
type Repository[T model.TokenID, A model.TokenAmount] interface {
	// AddListing inserts a listing iff none exists for key. The first writer
	// wins; a second add for the same key is a no-op and reports false.
	AddListing(ctx context.Context, key model.ListingKey[T], price model.Amount, quantity A) (bool, error)

	// GetListing returns nil, nil when no listing exists for key.
	GetListing(ctx context.Context, key model.ListingKey[T]) (*model.Listing[A], error)

	// PutListing overwrites an existing listing. It is a no-op when key is absent.
	PutListing(ctx context.Context, key model.ListingKey[T], listing model.Listing[A]) error

	// DecreaseQuantity subtracts delta when key is present and does nothing
	// otherwise. Callers must make sure delta does not exceed the quantity.
	DecreaseQuantity(ctx context.Context, key model.ListingKey[T], delta A) error

	// ListActive returns every listing with a quantity above zero, in
	// storage order.
	ListActive(ctx context.Context) ([]model.ListingItem[T, A], error)
}

// Txn is a Repository whose writes become visible only on Commit.
type Txn[T model.TokenID, A model.TokenAmount] interface {
	Repository[T, A]

	Commit() error
	Rollback() error
}

// Store opens one Txn per invocation.
type Store[T model.TokenID, A model.TokenAmount] interface {
	Begin(ctx context.Context) (Txn[T, A], error)
}

type record[T model.TokenID, A model.TokenAmount] struct {
	Key     model.ListingKey[T] `json:"key"`
	Listing model.Listing[A]    `json:"listing"`
}

func compareKeys[T model.TokenID](a, b model.ListingKey[T]) int {
	switch {
	case a.Token.Contract.Index != b.Token.Contract.Index:
		if a.Token.Contract.Index < b.Token.Contract.Index {
			return -1
		}
		return 1
	case a.Token.Contract.Subindex != b.Token.Contract.Subindex:
		if a.Token.Contract.Subindex < b.Token.Contract.Subindex {
			return -1
		}
		return 1
	}
	if as, bs := a.Token.ID.String(), b.Token.ID.String(); as != bs {
		if as < bs {
			return -1
		}
		return 1
	}
	ao, bo := string(a.Owner[:]), string(b.Owner[:])
	switch {
	case ao < bo:
		return -1
	case ao > bo:
		return 1
	}
	return 0
}
