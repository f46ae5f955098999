// Package schema holds the Postgres migrations of the market.
package schema

import (
	"database/sql"

	"github.com/adlio/schema"
)

// Migrations returns the ordered schema migrations.
func Migrations() []*schema.Migration {
	return []*schema.Migration{
		{
			ID: "2024-10-01 listings",
			Script: `
CREATE TABLE listings (
    seq               BIGSERIAL PRIMARY KEY,
    token_id          TEXT          NOT NULL,
    contract_index    NUMERIC(20,0) NOT NULL,
    contract_subindex NUMERIC(20,0) NOT NULL,
    owner             TEXT          NOT NULL,
    price             NUMERIC(20,0) NOT NULL,
    quantity          NUMERIC(20,0) NOT NULL,
    created_at        TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    UNIQUE (token_id, contract_index, contract_subindex, owner)
);`,
		},
		{
			ID: "2024-10-01 settlement intents",
			Script: `
CREATE TABLE settlement_intents (
    id                UUID PRIMARY KEY,
    token_id          TEXT          NOT NULL,
    contract_index    NUMERIC(20,0) NOT NULL,
    contract_subindex NUMERIC(20,0) NOT NULL,
    owner             TEXT          NOT NULL,
    quantity          NUMERIC(20,0) NOT NULL,
    payout            NUMERIC(20,0) NOT NULL,
    state             SMALLINT      NOT NULL,
    last_error        TEXT          NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);
CREATE INDEX settlement_intents_state ON settlement_intents (state, created_at);`,
		},
		{
			ID: "2024-10-01 accounts",
			Script: `
CREATE TABLE accounts (
    id            BIGSERIAL PRIMARY KEY,
    address       TEXT          NOT NULL UNIQUE,
    tb_account_id NUMERIC(39,0) NOT NULL,
    is_contract   BOOLEAN       NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);
CREATE TABLE users (
    id            BIGSERIAL PRIMARY KEY,
    address       TEXT        NOT NULL UNIQUE,
    password_hash TEXT        NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		},
		{
			ID: "2024-11-04 settlement intents by listing",
			Script: `
CREATE INDEX settlement_intents_listing ON settlement_intents (token_id, contract_index, contract_subindex, owner)
    WHERE state IN (1, 2);`,
		},
	}
}

// Apply runs the migrations that have not been applied to db yet.
func Apply(db *sql.DB) error {
	return schema.NewMigrator().Apply(db, Migrations())
}
