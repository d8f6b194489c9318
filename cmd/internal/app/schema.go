package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// bankSchemaDDL is the idempotent bootstrap for the bank schema. Applied at
// startup when KODBANK_DB_MIGRATE is true; re-running it is always safe.
//
// The balance CHECK backs the no-overdraft invariant at the storage layer;
// application code must still fail funds checks before violating it.
const bankSchemaDDL = `
CREATE SCHEMA IF NOT EXISTS bank;

CREATE TABLE IF NOT EXISTS bank.accounts (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  balance DOUBLE PRECISION NOT NULL DEFAULT 1000.0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_accounts_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_accounts_balance_nonneg CHECK (balance >= 0),
  CONSTRAINT uq_accounts_email_norm UNIQUE (email_norm)
);

CREATE TABLE IF NOT EXISTS bank.sessions (
  token_hash TEXT PRIMARY KEY,
  account_id TEXT NOT NULL REFERENCES bank.accounts (id),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON bank.sessions (expires_at);
CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON bank.sessions (account_id);
`

// ApplyBankSchema runs the bootstrap DDL.
func ApplyBankSchema(parent context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, bankSchemaDDL)
	return err
}
