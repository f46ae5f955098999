package user_test

import (
	"testing"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/user"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/user/tests"
)

func TestMemoryRepository(t *testing.T) {
	tests.RunTests(t, func(t *testing.T) user.UserRepository {
		return user.NewMemoryRepository()
	})
}
