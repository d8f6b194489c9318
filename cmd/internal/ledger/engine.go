package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"kodbank/cmd/account"
)

// Store is the slice of the credential store the engine needs. The atomic
// debit+credit (including the recipient-exists and sufficient-funds checks)
// lives behind this boundary so that no concurrent caller can observe a
// half-applied transfer.
type Store interface {
	Transfer(ctx context.Context, senderID, recipientID string, amount float64) (account.TransferResult, error)
}

// Result describes a completed transfer.
type Result struct {
	SenderID         string
	RecipientID      string
	Amount           float64
	SenderBalance    float64
	RecipientBalance float64
}

// Engine coordinates transfer validation and execution.
type Engine struct {
	store Store
}

// NewEngine constructs an Engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// ParseAmount converts a decoded JSON amount into a transferable value.
// Rejects non-numeric input and non-finite values with ErrInvalidAmount;
// positivity is checked later by Transfer so that the validation order stays
// in one place.
func ParseAmount(n json.Number) (float64, error) {
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// Transfer moves amount from sender to recipient.
//
// Checks run in a fixed order and the first failure wins:
//  1. amount must be positive and finite     -> ErrInvalidAmount
//  2. sender and recipient must differ       -> ErrSelfTransfer
//  3. recipient must exist                   -> ErrRecipientNotFound
//  4. sender must hold at least amount       -> ErrInsufficientFunds
//
// Steps 3 and 4 are evaluated by the store inside its atomic unit, so the
// funds check and the paired debit/credit cannot race with other transfers.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientID string, amount float64) (Result, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if senderID == recipientID {
		return Result{}, ErrSelfTransfer
	}

	res, err := e.store.Transfer(ctx, senderID, recipientID, amount)
	if err != nil {
		return Result{}, mapStoreError(err)
	}

	return Result{
		SenderID:         senderID,
		RecipientID:      recipientID,
		Amount:           amount,
		SenderBalance:    res.SenderBalance,
		RecipientBalance: res.RecipientBalance,
	}, nil
}

// mapStoreError translates credential-store failures into the engine's error
// kinds. A missing sender is not collapsed into recipient_not_found: the
// sender came from an authenticated session, so its absence is a server
// fault and passes through untranslated.
func mapStoreError(err error) error {
	var nf account.NotFoundError
	if errors.As(err, &nf) && nf.Resource == "recipient" {
		return ErrRecipientNotFound
	}
	if account.IsInsufficientFunds(err) {
		return ErrInsufficientFunds
	}
	if account.IsInvalidInput(err) {
		return ErrInvalidAmount
	}
	return err
}
