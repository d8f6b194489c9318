package ledger

import "errors"

// Transfer failure kinds, in the order they are checked. The first failing
// check wins; a request that is both a self-transfer and short on funds is
// reported as a self-transfer.
var (
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrSelfTransfer      = errors.New("self_transfer")
	ErrRecipientNotFound = errors.New("recipient_not_found")
	ErrInsufficientFunds = errors.New("insufficient_funds")
)
