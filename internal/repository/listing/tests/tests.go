// Package tests is the behaviour suite every listing store backend must pass.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

type (
	tokenID = model.TokenIDU32
	amount  = uint64
	store   = listing.Store[tokenID, amount]
)

// RunTests runs the suite against stores produced by newStore. Every test
// case gets a fresh, empty store.
func RunTests(t *testing.T, newStore func(t *testing.T) store) {
	for _, tf := range []func(t *testing.T, s store){
		testAddIsFirstWriterWins,
		testGetMissing,
		testDecreaseQuantity,
		testPutListing,
		testListActiveFiltersSoldOut,
		testRollbackDiscardsWrites,
		testReadYourWrites,
	} {
		tf(t, newStore(t))
	}
}

var (
	alice = model.AccountAddress{1}
	bob   = model.AccountAddress{2}

	tokenA = model.TokenIdentity[tokenID]{ID: 7, Contract: model.ContractAddress{Index: 10}}
	tokenB = model.TokenIdentity[tokenID]{ID: 7, Contract: model.ContractAddress{Index: 11}}
)

func withTxn(t *testing.T, s store, fn func(txn listing.Txn[tokenID, amount])) {
	t.Helper()
	txn, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer txn.Rollback()
	fn(txn)
	require.NoError(t, txn.Commit())
}

func testAddIsFirstWriterWins(t *testing.T, s store) {
	t.Run("add is first writer wins", func(t *testing.T) {
		ctx := context.Background()
		key := model.NewListingKey(tokenA, alice)

		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			added, err := txn.AddListing(ctx, key, 100, 5)
			require.NoError(t, err)
			assert.True(t, added)
		})
		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			added, err := txn.AddListing(ctx, key, 999, 50)
			require.NoError(t, err)
			assert.False(t, added)
		})
		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			got, err := txn.GetListing(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, model.Listing[amount]{Quantity: 5, Price: 100}, *got)

			items, err := txn.ListActive(ctx)
			require.NoError(t, err)
			assert.Len(t, items, 1)
		})
	})
}

func testGetMissing(t *testing.T, s store) {
	t.Run("get missing listing", func(t *testing.T) {
		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			got, err := txn.GetListing(context.Background(), model.NewListingKey(tokenB, bob))
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	})
}

func testDecreaseQuantity(t *testing.T, s store) {
	t.Run("decrease quantity", func(t *testing.T) {
		ctx := context.Background()
		key := model.NewListingKey(tokenA, alice)
		missing := model.NewListingKey(tokenA, bob)

		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			_, err := txn.AddListing(ctx, key, 100, 5)
			require.NoError(t, err)
			require.NoError(t, txn.DecreaseQuantity(ctx, key, 3))
			require.NoError(t, txn.DecreaseQuantity(ctx, missing, 3))
		})
		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			got, err := txn.GetListing(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.EqualValues(t, 2, got.Quantity)
			assert.EqualValues(t, 100, got.Price)

			got, err = txn.GetListing(ctx, missing)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	})
}

func testPutListing(t *testing.T, s store) {
	t.Run("put listing", func(t *testing.T) {
		ctx := context.Background()
		key := model.NewListingKey(tokenB, alice)
		missing := model.NewListingKey(tokenB, bob)

		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			_, err := txn.AddListing(ctx, key, 10, 10)
			require.NoError(t, err)
			require.NoError(t, txn.PutListing(ctx, key, model.Listing[amount]{Quantity: 4, Price: 10}))
			require.NoError(t, txn.PutListing(ctx, missing, model.Listing[amount]{Quantity: 4, Price: 10}))
		})
		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			got, err := txn.GetListing(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.EqualValues(t, 4, got.Quantity)

			got, err = txn.GetListing(ctx, missing)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	})
}

func testListActiveFiltersSoldOut(t *testing.T, s store) {
	t.Run("list active filters sold out listings", func(t *testing.T) {
		ctx := context.Background()
		soldOut := model.NewListingKey(tokenA, alice)
		active := model.NewListingKey(tokenB, bob)

		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			_, err := txn.AddListing(ctx, soldOut, 100, 2)
			require.NoError(t, err)
			_, err = txn.AddListing(ctx, active, 50, 1)
			require.NoError(t, err)
			require.NoError(t, txn.DecreaseQuantity(ctx, soldOut, 2))
		})
		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			items, err := txn.ListActive(ctx)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, model.ListingItem[tokenID, amount]{
				TokenID:  tokenB.ID,
				Contract: tokenB.Contract,
				Price:    50,
				Owner:    bob,
				Quantity: 1,
			}, items[0])

			// the sold out listing is still stored
			got, err := txn.GetListing(ctx, soldOut)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Zero(t, got.Quantity)
		})
	})
}

func testRollbackDiscardsWrites(t *testing.T, s store) {
	t.Run("rollback discards writes", func(t *testing.T) {
		ctx := context.Background()
		key := model.NewListingKey(tokenA, bob)

		txn, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = txn.AddListing(ctx, key, 1, 1)
		require.NoError(t, err)
		require.NoError(t, txn.Rollback())

		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			got, err := txn.GetListing(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	})
}

func testReadYourWrites(t *testing.T, s store) {
	t.Run("reads see uncommitted writes of the same transaction", func(t *testing.T) {
		ctx := context.Background()
		key := model.NewListingKey(tokenB, bob)

		withTxn(t, s, func(txn listing.Txn[tokenID, amount]) {
			_, err := txn.AddListing(ctx, key, 3, 9)
			require.NoError(t, err)
			require.NoError(t, txn.DecreaseQuantity(ctx, key, 4))

			got, err := txn.GetListing(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.EqualValues(t, 5, got.Quantity)

			items, err := txn.ListActive(ctx)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.EqualValues(t, 5, items[0].Quantity)
		})
	})
}
