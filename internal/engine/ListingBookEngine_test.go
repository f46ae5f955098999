package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

func TestMarketDepthAggregatesByPrice(t *testing.T) {
	book := NewListingBookEngine("<1,0>/00")
	require.NoError(t, book.AddListing("alice", 100, 5))
	require.NoError(t, book.AddListing("bob", 90, 2))
	require.NoError(t, book.AddListing("carol", 100, 1))
	require.NoError(t, book.AddListing("dave", 120, 0))
	require.Error(t, book.AddListing("alice", 80, 1))

	depth := book.GetMarketDepth(10)
	assert.Equal(t, "<1,0>/00", depth.Token)
	assert.Equal(t, []model.MarketDepthLevel{
		{Price: 90, Volume: 2, ListingCount: 1},
		{Price: 100, Volume: 6, ListingCount: 2},
	}, depth.Asks)
	assert.Equal(t, 3, book.ListingSize())

	best := book.GetBestAsk()
	require.NotNil(t, best)
	assert.EqualValues(t, 90, best.Price)

	assert.Len(t, book.GetMarketDepth(1).Asks, 1)
}

func TestRemoveListing(t *testing.T) {
	book := NewListingBookEngine("t")
	require.NoError(t, book.AddListing("alice", 100, 5))
	require.NoError(t, book.AddListing("bob", 100, 3))

	require.NoError(t, book.RemoveListing("alice"))
	require.Error(t, book.RemoveListing("alice"))
	assert.Equal(t, []model.MarketDepthLevel{{Price: 100, Volume: 3, ListingCount: 1}}, book.GetMarketDepth(5).Asks)

	require.NoError(t, book.RemoveListing("bob"))
	assert.Nil(t, book.GetBestAsk())
	assert.Empty(t, book.GetMarketDepth(5).Asks)
}
