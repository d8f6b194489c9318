package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in PostgreSQL.
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the session store (default "bank").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "bank"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) sessions() string {
	return pgx.Identifier{s.schema, "sessions"}.Sanitize()
}

func (s *PostgresStore) Insert(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.sessions()+` (token_hash, account_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		row.TokenHash, row.AccountID, row.CreatedAt, row.ExpiresAt,
	)
	return err
}

func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Row, error) {
	var row Row
	err := s.pool.QueryRow(ctx,
		`SELECT token_hash, account_id, created_at, expires_at
		   FROM `+s.sessions()+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(&row.TokenHash, &row.AccountID, &row.CreatedAt, &row.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrInvalidToken
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	// Idempotent: zero rows affected is fine.
	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.sessions()+` WHERE token_hash = $1`, tokenHash)
	return err
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.sessions()+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
