package settlement_test

import (
	"testing"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/pgtest"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement/tests"
)

func TestMain(m *testing.M) {
	pgtest.Main(m)
}

func TestPostgresJournal(t *testing.T) {
	tests.RunTests(t, func(t *testing.T) settlement.Journal {
		return settlement.NewPostgresJournal(pgtest.DB(t, "settlement_intents"))
	})
}
