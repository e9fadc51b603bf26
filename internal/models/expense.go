package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equalsplit/internal/money"
)

// SplitType selects how an expense amount is divided among participants.
type SplitType string

const (
	SplitEqual      SplitType = "equal"
	SplitExact      SplitType = "exact"
	SplitPercentage SplitType = "percentage"
	SplitShares     SplitType = "shares"
)

// Valid reports whether t is one of the four supported policies.
func (t SplitType) Valid() bool {
	switch t {
	case SplitEqual, SplitExact, SplitPercentage, SplitShares:
		return true
	}
	return false
}

// Expense is one payment by a group member, divided among participants.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	// GroupID is the group whose ledger holds this expense.
	GroupID string `json:"group_id"`

	// Description is the human-readable label (e.g., "Groceries").
	Description string `json:"description"`

	// Amount is the total paid, always positive.
	Amount money.Amount `json:"amount"`

	// PaidBy is the member who paid the full amount.
	PaidBy string `json:"paid_by"`

	// SplitType is the policy used to compute Splits.
	SplitType SplitType `json:"split_type"`

	// Splits holds one entry per participant in declaration order.
	// The amounts always add up to Amount exactly.
	Splits []Split `json:"splits"`

	// CreatedBy is the user who recorded the expense. Only they may delete it.
	CreatedBy string `json:"created_by"`

	// CreatedAt is when the expense was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Split is one participant's share of an expense.
type Split struct {
	UserID string       `json:"user_id"`
	Amount money.Amount `json:"amount"`

	// Percentage is set for percentage splits.
	Percentage *decimal.Decimal `json:"percentage,omitempty"`

	// Shares is set for shares splits.
	Shares int64 `json:"shares,omitempty"`
}

// Participants returns the user IDs of the split set in order.
func (e *Expense) Participants() []string {
	ids := make([]string, len(e.Splits))
	for i, s := range e.Splits {
		ids[i] = s.UserID
	}
	return ids
}

// References reports whether userID appears anywhere on the expense.
func (e *Expense) References(userID string) bool {
	if e.PaidBy == userID || e.CreatedBy == userID {
		return true
	}
	for _, s := range e.Splits {
		if s.UserID == userID {
			return true
		}
	}
	return false
}
