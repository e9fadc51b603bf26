package calculator

import (
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
)

type position struct {
	userID string
	amount money.Amount // always positive
}

// Simplify turns net balances into a short list of payments that clears them.
//
// Greedy matching: the largest remaining creditor is paired with the largest
// remaining debtor, min(credit, debt) is paid, and whoever reaches zero drops
// out. Equal amounts are broken by ascending user ID. Every step clears at
// least one user and the last clears two, so k non-zero users produce at most
// k-1 payments. This is the usual expense-splitting heuristic, not a proven
// global minimum across arbitrary sub-groupings.
//
// Users with a zero balance never appear in the output.
func Simplify(net map[string]money.Amount) []models.Balance {
	var creditors, debtors []position
	for userID, amount := range net {
		switch {
		case amount > 0:
			creditors = append(creditors, position{userID: userID, amount: amount})
		case amount < 0:
			debtors = append(debtors, position{userID: userID, amount: -amount})
		}
	}

	var payments []models.Balance
	for len(creditors) > 0 && len(debtors) > 0 {
		ci := largest(creditors)
		di := largest(debtors)

		amount := money.Min(creditors[ci].amount, debtors[di].amount)
		payments = append(payments, models.Balance{
			From:   debtors[di].userID,
			To:     creditors[ci].userID,
			Amount: amount,
		})

		creditors[ci].amount -= amount
		debtors[di].amount -= amount
		if creditors[ci].amount == 0 {
			creditors = removeAt(creditors, ci)
		}
		if debtors[di].amount == 0 {
			debtors = removeAt(debtors, di)
		}
	}
	return payments
}

// largest returns the index of the biggest position, lowest user ID on ties.
func largest(ps []position) int {
	best := 0
	for i := 1; i < len(ps); i++ {
		if ps[i].amount > ps[best].amount ||
			(ps[i].amount == ps[best].amount && ps[i].userID < ps[best].userID) {
			best = i
		}
	}
	return best
}

func removeAt(ps []position, i int) []position {
	last := len(ps) - 1
	ps[i] = ps[last]
	return ps[:last]
}

// ApplyPayments returns a copy of net with every payment recorded as a
// settlement (payer's balance rises, receiver's falls).
func ApplyPayments(net map[string]money.Amount, payments []models.Balance) map[string]money.Amount {
	out := make(map[string]money.Amount, len(net))
	for userID, amount := range net {
		out[userID] = amount
	}
	for _, p := range payments {
		out[p.From] += p.Amount
		out[p.To] -= p.Amount
	}
	return out
}
