package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
)

// Account links an address to its TigerBeetle currency account.
type Account struct {
	ID          int64     `db:"id"`
	Address     string    `db:"address"`
	TBAccountID string    `db:"tb_account_id"`
	IsContract  bool      `db:"is_contract"`
	CreatedAt   time.Time `db:"created_at"`
}

// --- Interface ---
type LedgerRepository interface {
	CreateAccount(ctx context.Context, tx *sqlx.Tx, address string, tbAccountID *big.Int, isContract bool) (int64, error)
	GetAccountByAddress(ctx context.Context, tx *sqlx.Tx, address string) (*Account, error)
	ListAccounts(ctx context.Context, tx *sqlx.Tx) ([]Account, error)
}

type ledgerRepositoryImpl struct {
}

func NewLedgerRepository() LedgerRepository {
	return &ledgerRepositoryImpl{}
}

func (r *ledgerRepositoryImpl) CreateAccount(ctx context.Context, tx *sqlx.Tx, address string, tbAccountID *big.Int, isContract bool) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO accounts (address, tb_account_id, is_contract)
         VALUES ($1, $2, $3) RETURNING id`,
		address, tbAccountID.String(), isContract,
	).Scan(&id)
	return id, err
}

func (r *ledgerRepositoryImpl) GetAccountByAddress(ctx context.Context, tx *sqlx.Tx, address string) (*Account, error) {
	var a Account
	err := tx.GetContext(ctx, &a,
		`SELECT id, address, tb_account_id::TEXT AS tb_account_id, is_contract, created_at
         FROM accounts
         WHERE address=$1`, address)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ledgerRepositoryImpl) ListAccounts(ctx context.Context, tx *sqlx.Tx) ([]Account, error) {
	var list []Account
	err := tx.SelectContext(ctx, &list,
		`SELECT id, address, tb_account_id::TEXT AS tb_account_id, is_contract, created_at
         FROM accounts
         ORDER BY id`)
	return list, err
}
