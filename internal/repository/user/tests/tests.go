// Package tests holds the test suite every user repository must pass.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/user"
)

const address = "3kBx2h5Y2veb4hZgAJWPrr8RyQESKm5TjzF3ti1QQ4VSYLwK1G"

func RunTests(t *testing.T, newRepo func(t *testing.T) user.UserRepository) {
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		repo := newRepo(t)
		id, err := repo.Create(ctx, address, "hunter22")
		require.NoError(t, err)

		byID, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, address, byID.Address)
		assert.NotEqual(t, "hunter22", byID.PasswordHash)

		byAddr, err := repo.GetByAddress(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, id, byAddr.ID)
	})

	t.Run("address is unique", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, address, "hunter22")
		require.NoError(t, err)
		_, err = repo.Create(ctx, address, "other")
		require.ErrorIs(t, err, user.ErrAddressTaken)
	})

	t.Run("verify password", func(t *testing.T) {
		repo := newRepo(t)
		id, err := repo.Create(ctx, address, "hunter22")
		require.NoError(t, err)

		u, err := repo.VerifyPassword(ctx, address, "hunter22")
		require.NoError(t, err)
		assert.Equal(t, id, u.ID)

		_, err = repo.VerifyPassword(ctx, address, "wrong")
		require.ErrorIs(t, err, user.ErrInvalidCredentials)
		_, err = repo.VerifyPassword(ctx, "unknown", "hunter22")
		require.ErrorIs(t, err, user.ErrInvalidCredentials)
	})

	t.Run("missing user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, 42)
		require.ErrorIs(t, err, user.ErrUserNotFound)
	})
}
