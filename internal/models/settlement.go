package models

import (
	"time"

	"github.com/mmynk/equalsplit/internal/money"
)

// Settlement represents a payment between group members to clear debts.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string `json:"id"`

	// GroupID is the group this settlement belongs to.
	GroupID string `json:"group_id"`

	// FromUser is the user who paid (debtor settling up).
	FromUser string `json:"from_user"`

	// ToUser is the user who received payment (creditor being paid).
	ToUser string `json:"to_user"`

	// Amount is the payment amount, always positive.
	Amount money.Amount `json:"amount"`

	// CreatedBy is the user who recorded this settlement.
	CreatedBy string `json:"created_by"`

	// CreatedAt is when the settlement was recorded.
	CreatedAt time.Time `json:"created_at"`

	// Note is an optional description for the settlement.
	Note string `json:"note,omitempty"`
}

// Balance is one suggested payment: From owes To the Amount.
// Balances are derived from the ledger on every read.
type Balance struct {
	From   string       `json:"from_user"`
	To     string       `json:"to_user"`
	Amount money.Amount `json:"amount"`
}

// References reports whether userID is a party to the settlement.
func (s *Settlement) References(userID string) bool {
	return s.FromUser == userID || s.ToUser == userID
}
