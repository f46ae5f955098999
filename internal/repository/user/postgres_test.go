package user_test

import (
	"testing"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/pgtest"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/user"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/user/tests"
)

func TestMain(m *testing.M) {
	pgtest.Main(m)
}

func TestPostgresRepository(t *testing.T) {
	tests.RunTests(t, func(t *testing.T) user.UserRepository {
		return user.NewUserRepository(pgtest.DB(t, "users"))
	})
}
