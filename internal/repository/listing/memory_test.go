package listing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing/tests"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

func TestMemoryStore(t *testing.T) {
	tests.RunTests(t, func(t *testing.T) listing.Store[model.TokenIDU32, uint64] {
		return listing.NewMemoryStore[model.TokenIDU32, uint64]()
	})
}

func TestMemoryStoreOrdersByKey(t *testing.T) {
	ctx := context.Background()
	s := listing.NewMemoryStore[model.TokenIDU8, uint8]()
	contract := model.ContractAddress{Index: 3}

	txn, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, id := range []model.TokenIDU8{9, 1, 5} {
		key := model.NewListingKey(model.TokenIdentity[model.TokenIDU8]{ID: id, Contract: contract}, model.AccountAddress{1})
		_, err := txn.AddListing(ctx, key, 1, 1)
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())
	require.Equal(t, 3, s.Len())

	txn, err = s.Begin(ctx)
	require.NoError(t, err)
	defer txn.Rollback()
	items, err := txn.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, model.TokenIDU8(1), items[0].TokenID)
	require.Equal(t, model.TokenIDU8(5), items[1].TokenID)
	require.Equal(t, model.TokenIDU8(9), items[2].TokenID)
}

func TestMemoryTxnIsolation(t *testing.T) {
	ctx := context.Background()
	s := listing.NewMemoryStore[model.TokenIDU8, uint8]()
	key := model.NewListingKey(model.TokenIdentity[model.TokenIDU8]{ID: 1}, model.AccountAddress{1})

	seed, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = seed.AddListing(ctx, key, 10, 10)
	require.NoError(t, err)
	require.NoError(t, seed.Commit())

	txn, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.DecreaseQuantity(ctx, key, 4))

	reader, err := s.Begin(ctx)
	require.NoError(t, err)
	got, err := reader.GetListing(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 10, got.Quantity, "uncommitted decrease must not leak into the committed tree")
	require.NoError(t, reader.Rollback())

	require.NoError(t, txn.Commit())
	require.Error(t, txn.Commit())
}
