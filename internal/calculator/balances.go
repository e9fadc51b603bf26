package calculator

import (
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
)

// MemberBalance is one user's position in a group.
type MemberBalance struct {
	UserID string       `json:"user_id"`
	Paid   money.Amount `json:"total_paid"` // expenses paid plus settlements sent
	Owed   money.Amount `json:"total_owed"` // split shares plus settlements received
	Net    money.Amount `json:"net_balance"`
}

// ComputeMemberBalances folds a group's history into per-member totals.
//
// Algorithm:
//   - For each expense: payer paid +amount, each split user owes +split amount
//   - For each settlement: from_user paid +amount, to_user owes +amount
//   - net = paid - owed; positive means the group owes the user
//
// Members are returned in group order, followed by any other user that
// appears in the history (sorted by first appearance).
func ComputeMemberBalances(members []string, expenses []*models.Expense, settlements []*models.Settlement) []MemberBalance {
	index := make(map[string]int, len(members))
	var balances []MemberBalance
	at := func(userID string) *MemberBalance {
		i, ok := index[userID]
		if !ok {
			i = len(balances)
			index[userID] = i
			balances = append(balances, MemberBalance{UserID: userID})
		}
		return &balances[i]
	}

	for _, m := range members {
		at(m)
	}
	for _, e := range expenses {
		at(e.PaidBy).Paid += e.Amount
		for _, s := range e.Splits {
			at(s.UserID).Owed += s.Amount
		}
	}
	for _, s := range settlements {
		at(s.FromUser).Paid += s.Amount
		at(s.ToUser).Owed += s.Amount
	}

	for i := range balances {
		balances[i].Net = balances[i].Paid - balances[i].Owed
	}
	return balances
}

// ComputeNetBalances returns each user's signed net position in the group.
// Every member is present, zero included. The result does not depend on the
// order of expenses or settlements.
func ComputeNetBalances(members []string, expenses []*models.Expense, settlements []*models.Settlement) map[string]money.Amount {
	net := make(map[string]money.Amount, len(members))
	for _, m := range members {
		net[m] = 0
	}
	for _, e := range expenses {
		net[e.PaidBy] += e.Amount
		for _, s := range e.Splits {
			net[s.UserID] -= s.Amount
		}
	}
	for _, s := range settlements {
		net[s.FromUser] += s.Amount
		net[s.ToUser] -= s.Amount
	}
	return net
}
