package model

type MarketDepthLevel struct {
	Price        Amount `json:"price"`
	Volume       uint64 `json:"volume"`
	ListingCount int    `json:"listingCount"`
}

// MarketDepth aggregates the active listings of one token by price.
type MarketDepth struct {
	Token     string             `json:"token"`
	Asks      []MarketDepthLevel `json:"asks"` // Lowest to highest price
	Timestamp int64              `json:"timestamp"`
}

// BestAsk returns the cheapest level, or nil when nothing is listed.
func (d *MarketDepth) BestAsk() *MarketDepthLevel {
	if len(d.Asks) == 0 {
		return nil
	}
	return &d.Asks[0]
}
