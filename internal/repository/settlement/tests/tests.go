// Package tests is the behaviour suite every settlement journal must pass.
package tests

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
)

// RunTests runs the suite against journals produced by newJournal. Every test
// case gets a fresh, empty journal.
func RunTests(t *testing.T, newJournal func(t *testing.T) settlement.Journal) {
	t.Run("reserve and get", func(t *testing.T) {
		j := newJournal(t)
		ctx := context.Background()
		id, err := j.Reserve(ctx, sample(3))
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, id)

		got, err := j.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, settlement.Reserved, got.State)
		assert.EqualValues(t, 3, got.Quantity)
		assert.EqualValues(t, 300, got.Payout)
		assert.Equal(t, "07000000", got.TokenID)
		assert.EqualValues(t, 10, got.ContractIndex)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := newJournal(t).Get(context.Background(), uuid.New())
		require.ErrorIs(t, err, settlement.ErrIntentNotFound)
	})

	t.Run("transitions are compare and set", func(t *testing.T) {
		j := newJournal(t)
		ctx := context.Background()
		id, err := j.Reserve(ctx, sample(1))
		require.NoError(t, err)

		require.NoError(t, j.Transition(ctx, id, settlement.Reserved, settlement.Escrowed, ""))
		err = j.Transition(ctx, id, settlement.Reserved, settlement.Released, "")
		require.ErrorIs(t, err, settlement.ErrStateConflict)

		require.NoError(t, j.Transition(ctx, id, settlement.Escrowed, settlement.Escrowed, "payout failed"))
		got, err := j.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, settlement.Escrowed, got.State)
		assert.Equal(t, "payout failed", got.LastError)

		require.NoError(t, j.Transition(ctx, id, settlement.Escrowed, settlement.Settled, ""))
		got, err = j.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, settlement.Settled, got.State)
		assert.Empty(t, got.LastError)

		require.ErrorIs(t, j.Transition(ctx, uuid.New(), settlement.Reserved, settlement.Escrowed, ""), settlement.ErrIntentNotFound)
	})

	t.Run("list by state", func(t *testing.T) {
		j := newJournal(t)
		ctx := context.Background()
		var escrowed []uuid.UUID
		for i := 0; i < 4; i++ {
			id, err := j.Reserve(ctx, sample(uint64(i+1)))
			require.NoError(t, err)
			if i%2 == 0 {
				require.NoError(t, j.Transition(ctx, id, settlement.Reserved, settlement.Escrowed, ""))
				escrowed = append(escrowed, id)
			}
		}

		got, err := j.ListByState(ctx, settlement.Escrowed, settlement.Page{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		ids := []uuid.UUID{got[0].ID, got[1].ID}
		assert.ElementsMatch(t, escrowed, ids)

		page := settlement.Page{Limit: 1}
		first, err := j.ListByState(ctx, settlement.Escrowed, page)
		require.NoError(t, err)
		require.Len(t, first, 1)
		assert.Equal(t, got[0].ID, first[0].ID)

		second, err := j.ListByState(ctx, settlement.Escrowed, page.Next(first[0]))
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, got[1].ID, second[0].ID)

		rest, err := j.ListByState(ctx, settlement.Escrowed, page.Next(second[0]))
		require.NoError(t, err)
		assert.Empty(t, rest)

		got, err = j.ListByState(ctx, settlement.Settled, settlement.Page{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("outstanding counts open intents of a listing", func(t *testing.T) {
		j := newJournal(t)
		ctx := context.Background()
		listing := sample(0).Listing()

		held, err := j.Outstanding(ctx, listing)
		require.NoError(t, err)
		assert.Zero(t, held)

		reserved, err := j.Reserve(ctx, sample(2))
		require.NoError(t, err)
		escrowed, err := j.Reserve(ctx, sample(3))
		require.NoError(t, err)
		require.NoError(t, j.Transition(ctx, escrowed, settlement.Reserved, settlement.Escrowed, ""))
		settled, err := j.Reserve(ctx, sample(5))
		require.NoError(t, err)
		require.NoError(t, j.Transition(ctx, settled, settlement.Reserved, settlement.Escrowed, ""))
		require.NoError(t, j.Transition(ctx, settled, settlement.Escrowed, settlement.Settled, ""))

		other := sample(7)
		other.Owner = "4Hp3X5uWfTBtUGdKNa9aqrLQZiyoJi1CZ1ARwHCzHPsGcR9GZU"
		_, err = j.Reserve(ctx, other)
		require.NoError(t, err)

		held, err = j.Outstanding(ctx, listing)
		require.NoError(t, err)
		assert.EqualValues(t, 5, held)

		require.NoError(t, j.Transition(ctx, reserved, settlement.Reserved, settlement.Released, "transfer failed"))
		held, err = j.Outstanding(ctx, listing)
		require.NoError(t, err)
		assert.EqualValues(t, 3, held)
	})
}

func sample(quantity uint64) settlement.Intent {
	return settlement.Intent{
		TokenID:       "07000000",
		ContractIndex: 10,
		Owner:         "3kBx2h5Y2veb4hZgAJWPrr8RyQESKm5TjzF3ti1QQ4VSYLwK1G",
		Quantity:      quantity,
		Payout:        quantity * 100,
	}
}
