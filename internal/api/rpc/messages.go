package rpc

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
	"github.com/mmynk/equalsplit/internal/service"
)

// SplitLine is one participant line of a non-equal split.
type SplitLine struct {
	UserID     string          `json:"userId"`
	Amount     money.Amount    `json:"amount,omitempty"`
	Percentage decimal.Decimal `json:"percentage"`
	Shares     int64           `json:"shares,omitempty"`
}

type AddExpenseRequest struct {
	GroupID      string       `json:"groupId"`
	Description  string       `json:"description"`
	Amount       money.Amount `json:"amount"`
	PaidBy       string       `json:"paidBy"`
	SplitType    string       `json:"splitType"`
	Participants []string     `json:"participants"`
	Splits       []SplitLine  `json:"splits,omitempty"`
}

type AddExpenseResponse struct {
	Expense *models.Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
}

type DeleteExpenseResponse struct{}

type RecordSettlementRequest struct {
	GroupID  string       `json:"groupId"`
	FromUser string       `json:"fromUser"`
	ToUser   string       `json:"toUser"`
	Amount   money.Amount `json:"amount"`
	Note     string       `json:"note,omitempty"`
}

type RecordSettlementResponse struct {
	Settlement *models.Settlement `json:"settlement"`
}

type GetGroupSummaryRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupSummaryResponse struct {
	Summary *service.GroupSummary `json:"summary"`
}
