package feed

import (
	"time"

	"kodbank/cmd/internal/ledger"
)

// Event is one balance update pushed to a subscribed account.
// Amount is signed from the receiving account's perspective: negative for
// the sender's debit, positive for the recipient's credit, and omitted for
// the snapshot sent on connect.
type Event struct {
	Type         string    `json:"type"`
	AccountID    string    `json:"account_id"`
	Balance      float64   `json:"balance"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       float64   `json:"amount,omitempty"`
	At           time.Time `json:"at"`
}

const eventTypeBalance = "balance"

// snapshotEvent is the current-balance event sent when a client connects.
func snapshotEvent(accountID string, balance float64, at time.Time) Event {
	return Event{
		Type:      eventTypeBalance,
		AccountID: accountID,
		Balance:   balance,
		At:        at,
	}
}

// transferEvents builds the two per-party events for a committed transfer.
func transferEvents(res ledger.Result, at time.Time) [2]Event {
	return [2]Event{
		{
			Type:         eventTypeBalance,
			AccountID:    res.SenderID,
			Balance:      res.SenderBalance,
			Counterparty: res.RecipientID,
			Amount:       -res.Amount,
			At:           at,
		},
		{
			Type:         eventTypeBalance,
			AccountID:    res.RecipientID,
			Balance:      res.RecipientBalance,
			Counterparty: res.SenderID,
			Amount:       res.Amount,
			At:           at,
		},
	}
}
