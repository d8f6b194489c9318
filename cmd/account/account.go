package account

import (
	"context"
	"strings"
	"time"
)

// StartingBalance is credited to every account at registration.
const StartingBalance = 1000.0

// Account is KodBank's canonical identity + funds holder.
// IMPORTANT: PasswordHash is the stored one-way credential; the plaintext
// password is never persisted.
type Account struct {
	ID        string
	Name      string
	Email     string
	EmailNorm string

	PasswordHash string

	Balance   float64
	CreatedAt time.Time
}

// CreateInput describes a registration request.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Now      time.Time
}

// TransferResult reports both post-transfer balances. The sender balance is
// the externally visible answer; the recipient balance feeds the event stream.
type TransferResult struct {
	SenderBalance    float64
	RecipientBalance float64
}

// Store is the credential-store persistence boundary.
//
// Balance invariants the implementations must uphold:
//   - balance >= 0 at every observable instant (no overdraft);
//   - AdjustBalance is a single atomic check+mutate (safe under concurrent
//     calls for the same id, no lost updates);
//   - Transfer is all-or-nothing across both rows: the funds check and the
//     paired debit/credit happen inside one transaction or lock region, and
//     no concurrent operation may observe the intermediate state.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)

	// AdjustBalance applies delta (which may be negative) to one account and
	// returns the new balance. Fails with ErrInsufficientFunds when the result
	// would go negative.
	AdjustBalance(ctx context.Context, id string, delta float64) (float64, error)

	// Transfer atomically debits sender and credits recipient by amount.
	// Fails with NotFoundError{Resource:"sender"|"recipient"} or
	// ErrInsufficientFunds; amount must be positive and finite.
	Transfer(ctx context.Context, senderID, recipientID string, amount float64) (TransferResult, error)
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
