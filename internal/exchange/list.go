package exchange

import (
	"context"
	"fmt"

	"github.com/josidbobo/IDConcordiumDEX/internal/engine"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// List returns every listing with a quantity above zero.
func (e *Exchange[T, A]) List(ctx context.Context) ([]model.ListingItem[T, A], error) {
	var items []model.ListingItem[T, A]
	err := e.rt.Query(ctx, func(ctx context.Context, state listing.Txn[T, A]) error {
		var err error
		items, err = state.ListActive(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.ListingItem[T, A]{}
	}
	return items, nil
}

// View describes the instance.
type View struct {
	Instance       model.ContractAddress `json:"instance"`
	Owner          model.AccountAddress  `json:"owner"`
	Balance        model.Amount          `json:"balance"`
	ActiveListings int                   `json:"active_listings"`
}

func (e *Exchange[T, A]) View(ctx context.Context) (View, error) {
	items, err := e.List(ctx)
	if err != nil {
		return View{}, err
	}
	balance, err := e.rt.SelfBalance(ctx)
	if err != nil {
		return View{}, fmt.Errorf("instance balance: %w", err)
	}
	return View{
		Instance:       e.rt.Self(),
		Owner:          e.rt.Owner(),
		Balance:        balance,
		ActiveListings: len(items),
	}, nil
}

// Depth aggregates the active listings of token into at most levels price
// levels, cheapest first. levels <= 0 returns every level.
func (e *Exchange[T, A]) Depth(ctx context.Context, token model.TokenIdentity[T], levels int) (*model.MarketDepth, error) {
	items, err := e.List(ctx)
	if err != nil {
		return nil, err
	}
	book := engine.NewListingBookEngine(token.String())
	for _, item := range items {
		if item.TokenID != token.ID || item.Contract != token.Contract {
			continue
		}
		if err := book.AddListing(item.Owner.String(), item.Price, uint64(item.Quantity)); err != nil {
			return nil, err
		}
	}
	if levels <= 0 {
		levels = book.ListingSize()
	}
	depth := book.GetMarketDepth(levels)
	depth.Timestamp = e.now().UnixMilli()
	return depth, nil
}
