package account

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-memory credential store used in dev mode and unit
// tests. Not durable: process restart loses all state.
//
// Locking model:
//   - mu guards the indexes (id -> record, email_norm -> id). Create holds it
//     exclusively so the email existence check and the insert are one atomic step.
//   - each record carries its own mutex; balance reads and writes go through it.
//   - Transfer locks both records in ascending-id order, mirroring the
//     Postgres store's ORDER BY id FOR UPDATE, so opposing transfers on the
//     same pair cannot deadlock.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*memAccount
	byEmail map[string]string
}

type memAccount struct {
	mu   sync.Mutex
	acct Account
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*memAccount),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

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

	// Hash outside the lock; Argon2id is deliberately slow.
	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	a := Account{
		ID:           id,
		Name:         name,
		Email:        email,
		EmailNorm:    emailNorm,
		PasswordHash: pwHash,
		Balance:      StartingBalance,
		CreatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[emailNorm]; exists {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[id] = &memAccount{acct: a}
	s.byEmail[emailNorm] = id

	return a, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	rec := s.lookup(id)
	if rec == nil {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.acct, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "account.GetByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryStore) AdjustBalance(ctx context.Context, id string, delta float64) (float64, error) {
	const op = "account.AdjustBalance"

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "non-finite delta"}
	}

	rec := s.lookup(id)
	if rec == nil {
		return 0, NotFoundError{Op: op, Resource: "account"}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	newBalance := rec.acct.Balance + delta
	if newBalance < 0 {
		return 0, OpError{Op: op, Kind: ErrInsufficientFunds}
	}
	rec.acct.Balance = newBalance
	return newBalance, nil
}

func (s *MemoryStore) Transfer(ctx context.Context, senderID, recipientID string, amount float64) (TransferResult, error) {
	const op = "account.Transfer"

	if err := ctx.Err(); err != nil {
		return TransferResult{}, err
	}
	if senderID == recipientID {
		return TransferResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "sender and recipient must differ"}
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return TransferResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "amount must be positive and finite"}
	}

	sender := s.lookup(senderID)
	if sender == nil {
		return TransferResult{}, NotFoundError{Op: op, Resource: "sender"}
	}
	recipient := s.lookup(recipientID)
	if recipient == nil {
		return TransferResult{}, NotFoundError{Op: op, Resource: "recipient"}
	}

	// Fixed global lock order: ascending account id.
	first, second := sender, recipient
	if recipientID < senderID {
		first, second = recipient, sender
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if sender.acct.Balance < amount {
		return TransferResult{}, OpError{Op: op, Kind: ErrInsufficientFunds}
	}

	sender.acct.Balance -= amount
	recipient.acct.Balance += amount

	return TransferResult{
		SenderBalance:    sender.acct.Balance,
		RecipientBalance: recipient.acct.Balance,
	}, nil
}

func (s *MemoryStore) lookup(id string) *memAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}
