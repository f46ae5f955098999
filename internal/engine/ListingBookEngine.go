package engine

import (
	"fmt"
	"time"

	"github.com/google/btree"

	bookModel "github.com/josidbobo/IDConcordiumDEX/internal/engine/model"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// ListingBookEngine aggregates the listings of one token identity into ask
// price levels.
type ListingBookEngine interface {
	AddListing(owner string, price model.Amount, quantity uint64) error
	RemoveListing(owner string) error
	ListingSize() int
	GetMarketDepth(levels int) *model.MarketDepth
	GetBestAsk() *model.MarketDepthLevel
}

type ListingBookEngineImpl struct {
	token  string
	asks   *btree.BTree            // price-level tree
	owners map[string]model.Amount // owner -> price of their listing
}

func NewListingBookEngine(token string) ListingBookEngine {
	return &ListingBookEngineImpl{
		token:  token,
		asks:   btree.New(32),
		owners: make(map[string]model.Amount),
	}
}

func (o *ListingBookEngineImpl) AddListing(owner string, price model.Amount, quantity uint64) error {
	if _, ok := o.owners[owner]; ok {
		return fmt.Errorf("listing of %s already in book", owner)
	}
	if quantity == 0 {
		return nil
	}
	o.owners[owner] = price

	key := &bookModel.AskPriceLevel{Price: price}
	level, ok := o.asks.Get(key).(*bookModel.AskPriceLevel)
	if !ok {
		level = key
		o.asks.ReplaceOrInsert(level)
	}
	level.Add(owner, quantity)
	return nil
}

func (o *ListingBookEngineImpl) RemoveListing(owner string) error {
	price, ok := o.owners[owner]
	if !ok {
		return fmt.Errorf("listing not found: %s", owner)
	}
	if level, ok := o.asks.Get(&bookModel.AskPriceLevel{Price: price}).(*bookModel.AskPriceLevel); ok {
		level.RemoveOwner(owner)
		if len(level.Owners) == 0 {
			o.asks.Delete(level)
		}
	}
	delete(o.owners, owner)
	return nil
}

func (o *ListingBookEngineImpl) ListingSize() int {
	return len(o.owners)
}

func (o *ListingBookEngineImpl) GetMarketDepth(levels int) *model.MarketDepth {
	depth := &model.MarketDepth{
		Token:     o.token,
		Asks:      make([]model.MarketDepthLevel, 0, levels),
		Timestamp: time.Now().UnixMilli(),
	}

	// Collect ask levels (lowest price first)
	o.asks.Ascend(func(item btree.Item) bool {
		if len(depth.Asks) >= levels {
			return false
		}
		askLevel := item.(*bookModel.AskPriceLevel)
		depth.Asks = append(depth.Asks, model.MarketDepthLevel{
			Price:        askLevel.Price,
			Volume:       askLevel.TotalVolume,
			ListingCount: len(askLevel.Owners),
		})
		return true
	})

	return depth
}

func (o *ListingBookEngineImpl) GetBestAsk() *model.MarketDepthLevel {
	if o.asks.Len() == 0 {
		return nil
	}
	best := o.asks.Min().(*bookModel.AskPriceLevel)
	return &model.MarketDepthLevel{
		Price:        best.Price,
		Volume:       best.TotalVolume,
		ListingCount: len(best.Owners),
	}
}
