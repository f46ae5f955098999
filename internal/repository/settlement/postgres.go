package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresJournal keeps intents in the settlement_intents table. Every call
// runs in its own database transaction.
type PostgresJournal struct {
	db *sqlx.DB
}

var _ Journal = (*PostgresJournal)(nil)

func NewPostgresJournal(db *sqlx.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

const intentColumns = `id, token_id, contract_index, contract_subindex, owner, quantity, payout, state, last_error, created_at, updated_at`

func (j *PostgresJournal) Reserve(ctx context.Context, intent Intent) (uuid.UUID, error) {
	id := uuid.New()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO settlement_intents (id, token_id, contract_index, contract_subindex, owner, quantity, payout, state)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		id, intent.TokenID,
		strconv.FormatUint(intent.ContractIndex, 10), strconv.FormatUint(intent.ContractSubindex, 10),
		intent.Owner,
		strconv.FormatUint(intent.Quantity, 10), strconv.FormatUint(intent.Payout, 10),
		Reserved)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting intent: %w", err)
	}
	return id, nil
}

func (j *PostgresJournal) Get(ctx context.Context, id uuid.UUID) (*Intent, error) {
	var intent Intent
	err := j.db.GetContext(ctx, &intent,
		`SELECT `+intentColumns+` FROM settlement_intents WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (j *PostgresJournal) Transition(ctx context.Context, id uuid.UUID, from, to State, lastError string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE settlement_intents SET state=$1, last_error=$2, updated_at=NOW()
         WHERE id=$3 AND state=$4`,
		to, lastError, id, from)
	if err != nil {
		return fmt.Errorf("updating intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	current, err := j.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s, want %s", ErrStateConflict, id, current.State, from)
}

func (j *PostgresJournal) ListByState(ctx context.Context, state State, page Page) ([]Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM settlement_intents WHERE state=$1`
	args := []interface{}{state}
	if !page.AfterCreatedAt.IsZero() || page.AfterID != uuid.Nil {
		query += ` AND (created_at, id) > ($2, $3)`
		args = append(args, page.AfterCreatedAt, page.AfterID)
	}
	query += ` ORDER BY created_at, id`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	var intents []Intent
	err := j.db.SelectContext(ctx, &intents, query, args...)
	return intents, err
}

func (j *PostgresJournal) Outstanding(ctx context.Context, listing Listing) (uint64, error) {
	var sum uint64
	err := j.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(quantity), 0) FROM settlement_intents
         WHERE token_id=$1 AND contract_index=$2 AND contract_subindex=$3 AND owner=$4 AND state IN ($5, $6)`,
		listing.TokenID,
		strconv.FormatUint(listing.ContractIndex, 10), strconv.FormatUint(listing.ContractSubindex, 10),
		listing.Owner, Reserved, Escrowed)
	if err != nil {
		return 0, fmt.Errorf("summing outstanding intents: %w", err)
	}
	return sum, nil
}
