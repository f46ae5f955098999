package listing

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// --- Model corresponding to the listings table ---
type listingRecord struct {
	TokenID          string `db:"token_id"`
	ContractIndex    uint64 `db:"contract_index"`
	ContractSubindex uint64 `db:"contract_subindex"`
	Owner            string `db:"owner"`
	Price            uint64 `db:"price"`
	Quantity         uint64 `db:"quantity"`
}

// PostgresStore keeps listings in the listings table. Each Txn is a
// database transaction; storage order is insertion order.
type PostgresStore[T model.TokenID, A model.TokenAmount] struct {
	db *sqlx.DB
}

var _ Store[model.TokenIDU8, uint64] = (*PostgresStore[model.TokenIDU8, uint64])(nil)

func NewPostgresStore[T model.TokenID, A model.TokenAmount](db *sqlx.DB) *PostgresStore[T, A] {
	return &PostgresStore[T, A]{db: db}
}

func (s *PostgresStore[T, A]) Begin(ctx context.Context) (Txn[T, A], error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin listing transaction: %w", err)
	}
	return &postgresTxn[T, A]{tx: tx}, nil
}

type postgresTxn[T model.TokenID, A model.TokenAmount] struct {
	tx *sqlx.Tx
}

// numeric columns hold full uint64 values, which database/sql refuses to
// bind when the high bit is set
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func (t *postgresTxn[T, A]) AddListing(ctx context.Context, key model.ListingKey[T], price model.Amount, quantity A) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO listings (token_id, contract_index, contract_subindex, owner, price, quantity)
         VALUES ($1,$2,$3,$4,$5,$6)
         ON CONFLICT (token_id, contract_index, contract_subindex, owner) DO NOTHING`,
		key.Token.ID.String(), numeric(key.Token.Contract.Index), numeric(key.Token.Contract.Subindex),
		key.Owner.String(), numeric(uint64(price)), numeric(uint64(quantity)))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *postgresTxn[T, A]) GetListing(ctx context.Context, key model.ListingKey[T]) (*model.Listing[A], error) {
	var rec listingRecord
	err := t.tx.GetContext(ctx, &rec,
		`SELECT token_id, contract_index, contract_subindex, owner, price, quantity
         FROM listings
         WHERE token_id=$1 AND contract_index=$2 AND contract_subindex=$3 AND owner=$4`,
		key.Token.ID.String(), numeric(key.Token.Contract.Index), numeric(key.Token.Contract.Subindex),
		key.Owner.String())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Listing[A]{Quantity: A(rec.Quantity), Price: model.Amount(rec.Price)}, nil
}

func (t *postgresTxn[T, A]) PutListing(ctx context.Context, key model.ListingKey[T], listing model.Listing[A]) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE listings SET price=$1, quantity=$2
         WHERE token_id=$3 AND contract_index=$4 AND contract_subindex=$5 AND owner=$6`,
		numeric(uint64(listing.Price)), numeric(uint64(listing.Quantity)),
		key.Token.ID.String(), numeric(key.Token.Contract.Index), numeric(key.Token.Contract.Subindex),
		key.Owner.String())
	return err
}

func (t *postgresTxn[T, A]) DecreaseQuantity(ctx context.Context, key model.ListingKey[T], delta A) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE listings SET quantity=quantity-$1
         WHERE token_id=$2 AND contract_index=$3 AND contract_subindex=$4 AND owner=$5`,
		numeric(uint64(delta)),
		key.Token.ID.String(), numeric(key.Token.Contract.Index), numeric(key.Token.Contract.Subindex),
		key.Owner.String())
	return err
}

func (t *postgresTxn[T, A]) ListActive(ctx context.Context) ([]model.ListingItem[T, A], error) {
	var records []listingRecord
	err := t.tx.SelectContext(ctx, &records,
		`SELECT token_id, contract_index, contract_subindex, owner, price, quantity
         FROM listings WHERE quantity > 0 ORDER BY seq`)
	if err != nil {
		return nil, err
	}

	items := make([]model.ListingItem[T, A], 0, len(records))
	for _, rec := range records {
		id, err := model.ParseTokenID[T](rec.TokenID)
		if err != nil {
			return nil, err
		}
		owner, err := model.ParseAccountAddress(rec.Owner)
		if err != nil {
			return nil, err
		}
		items = append(items, model.ListingItem[T, A]{
			TokenID:  id,
			Contract: model.ContractAddress{Index: rec.ContractIndex, Subindex: rec.ContractSubindex},
			Price:    model.Amount(rec.Price),
			Owner:    owner,
			Quantity: A(rec.Quantity),
		})
	}
	return items, nil
}

func (t *postgresTxn[T, A]) Commit() error {
	return t.tx.Commit()
}

func (t *postgresTxn[T, A]) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
