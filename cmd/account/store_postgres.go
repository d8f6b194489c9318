package account

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the credential store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Transfer locks both account rows in ascending-id order (single query with
//   ORDER BY id FOR UPDATE) so opposing transfers on the same pair cannot deadlock.
// - Errors are mapped to account sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "bank").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("account: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("account: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "bank",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("account: nil pool")
	}
	return st, nil
}

const accountColumns = `id, name, email, email_norm, password_hash, balance, created_at`

// Create registers a new account with the fixed starting balance.
// Email uniqueness is enforced by the unique index on email_norm: the insert
// is the check (no separate existence probe, no duplicate-admitting race).
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "name and email are required"}
	}
	if strings.TrimSpace(in.Password) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	emailNorm := NormalizeEmail(email)

	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	accounts := pgIdent(s.schema, "accounts")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+accounts+` (
		     id, name, email, email_norm, password_hash, balance, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, name, email, emailNorm, pwHash, StartingBalance, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	return Account{
		ID:           id,
		Name:         name,
		Email:        email,
		EmailNorm:    emailNorm,
		PasswordHash: pwHash,
		Balance:      StartingBalance,
		CreatedAt:    now,
	}, nil
}

// GetByID returns the account for id, or NotFoundError.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.GetByID"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if strings.TrimSpace(id) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing id"}
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+accounts+` WHERE id = $1`, id)
	out, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

// GetByEmail returns the account for the normalized email, or NotFoundError.
// The result includes the stored credential hash for verification by the caller.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "account.GetByEmail"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	emailNorm := NormalizeEmail(email)
	if emailNorm == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing email"}
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+accounts+` WHERE email_norm = $1`, emailNorm)
	out, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

// AdjustBalance applies delta to one account inside a transaction.
// The row lock makes the funds check and the write one atomic unit.
func (s *PostgresStore) AdjustBalance(ctx context.Context, id string, delta float64) (float64, error) {
	const op = "account.AdjustBalance"

	if s == nil || s.pool == nil {
		return 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if strings.TrimSpace(id) == "" {
		return 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing id"}
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "non-finite delta"}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	accounts := pgIdent(s.schema, "accounts")

	var balance float64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM `+accounts+` WHERE id = $1 FOR UPDATE`, id,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return 0, err
	}

	newBalance := balance + delta
	if newBalance < 0 {
		return 0, OpError{Op: op, Kind: ErrInsufficientFunds}
	}

	_, err = tx.Exec(ctx,
		`UPDATE `+accounts+` SET balance = $2 WHERE id = $1`, id, newBalance)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Transfer atomically moves amount from sender to recipient.
//
// Both rows are locked by one SELECT ... ORDER BY id FOR UPDATE, so every
// transfer touching a given pair acquires the locks in the same (ascending)
// order regardless of direction. The funds check runs on the locked rows;
// commit publishes both updates or neither.
func (s *PostgresStore) Transfer(ctx context.Context, senderID, recipientID string, amount float64) (TransferResult, error) {
	const op = "account.Transfer"

	if s == nil || s.pool == nil {
		return TransferResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(recipientID) == "" {
		return TransferResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing account id"}
	}
	if senderID == recipientID {
		return TransferResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "sender and recipient must differ"}
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return TransferResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "amount must be positive and finite"}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return TransferResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	accounts := pgIdent(s.schema, "accounts")

	rows, err := tx.Query(ctx,
		`SELECT id, balance FROM `+accounts+`
		  WHERE id = ANY($1)
		  ORDER BY id
		  FOR UPDATE`,
		[]string{senderID, recipientID},
	)
	if err != nil {
		return TransferResult{}, err
	}

	balances := make(map[string]float64, 2)
	for rows.Next() {
		var id string
		var bal float64
		if err := rows.Scan(&id, &bal); err != nil {
			rows.Close()
			return TransferResult{}, err
		}
		balances[id] = bal
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return TransferResult{}, err
	}

	senderBal, ok := balances[senderID]
	if !ok {
		return TransferResult{}, NotFoundError{Op: op, Resource: "sender"}
	}
	recipientBal, ok := balances[recipientID]
	if !ok {
		return TransferResult{}, NotFoundError{Op: op, Resource: "recipient"}
	}

	if senderBal < amount {
		return TransferResult{}, OpError{Op: op, Kind: ErrInsufficientFunds}
	}

	newSender := senderBal - amount
	newRecipient := recipientBal + amount

	if _, err := tx.Exec(ctx,
		`UPDATE `+accounts+` SET balance = $2 WHERE id = $1`, senderID, newSender); err != nil {
		return TransferResult{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE `+accounts+` SET balance = $2 WHERE id = $1`, recipientID, newRecipient); err != nil {
		return TransferResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}

	return TransferResult{SenderBalance: newSender, RecipientBalance: newRecipient}, nil
}

// ---- helpers ----

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.EmailNorm,
		&a.PasswordHash,
		&a.Balance,
		&a.CreatedAt,
	)
	return a, err
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_accounts_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
