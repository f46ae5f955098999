package model

import (
	"github.com/google/btree"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// AskPriceLevel ascending
type AskPriceLevel struct {
	Price       model.Amount
	Owners      []string
	Quantities  []uint64
	TotalVolume uint64
}

func (pl *AskPriceLevel) Less(than btree.Item) bool {
	other := than.(*AskPriceLevel)
	return pl.Price < other.Price
}

func (pl *AskPriceLevel) Add(owner string, quantity uint64) {
	pl.Owners = append(pl.Owners, owner)
	pl.Quantities = append(pl.Quantities, quantity)
	pl.TotalVolume += quantity
}

// RemoveOwner drops the listing of owner from the level.
func (pl *AskPriceLevel) RemoveOwner(owner string) bool {
	for i, o := range pl.Owners {
		if o == owner {
			pl.TotalVolume -= pl.Quantities[i]
			pl.Owners = append(pl.Owners[:i], pl.Owners[i+1:]...)
			pl.Quantities = append(pl.Quantities[:i], pl.Quantities[i+1:]...)
			return true
		}
	}
	return false
}
