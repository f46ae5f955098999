package currency

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/ledger"
	"github.com/josidbobo/IDConcordiumDEX/pkg/util"
)

type MemoryDirectory struct {
	mtx sync.RWMutex
	ids map[string]types.Uint128
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{ids: make(map[string]types.Uint128)}
}

func (d *MemoryDirectory) Lookup(ctx context.Context, key string) (types.Uint128, bool, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	id, ok := d.ids[key]
	return id, ok, nil
}

func (d *MemoryDirectory) Save(ctx context.Context, key string, id types.Uint128, isContract bool) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.ids[key] = id
	return nil
}

// PostgresDirectory keeps the mapping in the accounts table.
type PostgresDirectory struct {
	db   *sqlx.DB
	repo ledger.LedgerRepository
}

func NewPostgresDirectory(db *sqlx.DB, repo ledger.LedgerRepository) *PostgresDirectory {
	return &PostgresDirectory{db: db, repo: repo}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, key string) (types.Uint128, bool, error) {
	tx, err := d.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return types.Uint128{}, false, err
	}
	defer tx.Rollback()

	acc, err := d.repo.GetAccountByAddress(ctx, tx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Uint128{}, false, nil
	}
	if err != nil {
		return types.Uint128{}, false, err
	}
	id, err := util.StringToUint128(acc.TBAccountID)
	if err != nil {
		return types.Uint128{}, false, err
	}
	return id, true, nil
}

func (d *PostgresDirectory) Save(ctx context.Context, key string, id types.Uint128, isContract bool) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bi := id.BigInt()
	if _, err := d.repo.CreateAccount(ctx, tx, key, &bi, isContract); err != nil {
		return err
	}
	return tx.Commit()
}
