package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/internal/config"
	"github.com/josidbobo/IDConcordiumDEX/internal/currency"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	ledgerRepository "github.com/josidbobo/IDConcordiumDEX/internal/repository/ledger"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/schema"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"

	_ "github.com/lib/pq"
)

// init-market applies the database schema and opens the treasury, instance
// and owner currency accounts. Running it again is a no-op.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)
	fatal := func(msg string, err error) {
		logger.Error(msg, "err", err)
		os.Exit(1)
	}

	conf, err := config.Load(nil)
	if err != nil {
		fatal("error loading config", err)
	}

	db, err := sqlx.Connect("postgres", conf.DSN())
	if err != nil {
		fatal("error connecting postgres", err)
	}
	defer db.Close()

	if err := schema.Apply(db.DB); err != nil {
		fatal("error applying schema", err)
	}
	logger.Info("schema applied")

	client, err := tb.NewClient(tbTypes.ToUint128(conf.TBClusterID), conf.TBReplicas())
	if err != nil {
		fatal("error connecting tigerbeetle", err)
	}
	defer client.Close()

	repo := ledgerRepository.NewLedgerRepository()
	ledger := currency.NewLedger(currency.LedgerOpts{
		Client:    client,
		Directory: currency.NewPostgresDirectory(db, repo),
		Logger:    logger,
	})
	if err := ledger.OpenTreasury(rootCtx); err != nil {
		fatal("error opening treasury", err)
	}
	instance := model.ContractOf(conf.Instance())
	for _, addr := range []model.Address{instance, model.AccountOf(conf.Owner())} {
		if err := ledger.Open(rootCtx, addr); err != nil {
			fatal("error opening currency account", err)
		}
	}

	tx, err := db.BeginTxx(rootCtx, nil)
	if err != nil {
		fatal("error starting transaction", err)
	}
	defer tx.Rollback()
	accounts, err := repo.ListAccounts(rootCtx, tx)
	if err != nil {
		fatal("error listing accounts", err)
	}
	for _, acc := range accounts {
		logger.Info("currency account", "address", acc.Address, "tb_account", acc.TBAccountID, "contract", acc.IsContract)
	}

	balance, err := ledger.Balance(rootCtx, instance)
	if err != nil {
		fatal("error reading instance balance", err)
	}
	logger.Info("instance ready", "instance", conf.Instance(), "owner", conf.Owner(), "balance", balance)
}
