package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
)

// MaxShares is the largest share count accepted for a single participant.
const MaxShares = 1_000_000

var (
	hundred          = decimal.NewFromInt(100)
	percentTolerance = decimal.New(1, -3)
)

// SplitEntry is one participant line of an exact, percentage or shares split.
// Only the field matching the split type is read.
type SplitEntry struct {
	UserID     string
	Amount     money.Amount
	Percentage decimal.Decimal
	Shares     int64
}

// SplitInput is the raw split request as submitted by the client.
type SplitInput struct {
	// Participants lists who shares an equal split, in declaration order.
	Participants []string

	// Entries lists the per-user lines for the other split types.
	Entries []SplitEntry
}

// ValidateSplit checks a split request against its policy and the group's
// members and returns the resulting split set.
//
// The returned owed amounts always add up to amount exactly. Rounding
// leftovers are assigned deterministically:
//   - equal: one cent each to the first participants in declaration order
//   - percentage: the last entry absorbs the residual
//   - shares: one cent each by largest share first, ties in declaration order
func ValidateSplit(members []string, splitType models.SplitType, amount money.Amount, in SplitInput) ([]models.Split, error) {
	if !amount.Payable() {
		return nil, apperr.Newf(apperr.ErrInvalidAmount,
			"expense amount %s must be greater than 0 and at most %s", amount, money.MaxAmount)
	}

	switch splitType {
	case models.SplitEqual:
		if err := checkParticipants(members, in.Participants); err != nil {
			return nil, err
		}
		return equalSplit(amount, in.Participants), nil

	case models.SplitExact, models.SplitPercentage, models.SplitShares:
		if err := checkParticipants(members, entryUsers(in.Entries)); err != nil {
			return nil, err
		}
		switch splitType {
		case models.SplitExact:
			return exactSplit(amount, in.Entries)
		case models.SplitPercentage:
			return percentageSplit(amount, in.Entries)
		default:
			return shareSplit(amount, in.Entries)
		}

	default:
		return nil, apperr.Newf(apperr.ErrInvalidSplitType, "unknown split type %q", splitType)
	}
}

func entryUsers(entries []SplitEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	return ids
}

// checkParticipants enforces a non-empty, duplicate-free list of members.
func checkParticipants(members, ids []string) error {
	if len(ids) == 0 {
		return apperr.ErrEmptyParticipants
	}
	memberSet := make(map[string]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !memberSet[id] {
			return apperr.Newf(apperr.ErrUnknownMember, "user %q is not a member of the group", id)
		}
		if seen[id] {
			return apperr.Newf(apperr.ErrDuplicateParticipant, "user %q appears more than once", id)
		}
		seen[id] = true
	}
	return nil
}

func equalSplit(amount money.Amount, participants []string) []models.Split {
	n := money.Amount(len(participants))
	base := amount / n
	remainder := amount - base*n

	splits := make([]models.Split, len(participants))
	for i, id := range participants {
		owed := base
		if money.Amount(i) < remainder {
			owed++
		}
		splits[i] = models.Split{UserID: id, Amount: owed}
	}
	return splits
}

func exactSplit(amount money.Amount, entries []SplitEntry) ([]models.Split, error) {
	splits := make([]models.Split, len(entries))
	var total money.Amount
	for i, e := range entries {
		if e.Amount < 0 || e.Amount > money.MaxAmount {
			return nil, apperr.Newf(apperr.ErrInvalidAmount, "amount %s for user %q is out of range", e.Amount, e.UserID)
		}
		total += e.Amount
		splits[i] = models.Split{UserID: e.UserID, Amount: e.Amount}
	}
	if total != amount {
		return nil, apperr.Newf(apperr.ErrSplitMismatch, "split amounts total %s, expense is %s", total, amount)
	}
	return splits, nil
}

func percentageSplit(amount money.Amount, entries []SplitEntry) ([]models.Split, error) {
	total := decimal.Zero
	for _, e := range entries {
		if e.Percentage.IsNegative() || e.Percentage.GreaterThan(hundred) {
			return nil, apperr.Newf(apperr.ErrSplitMismatch, "percentage %s for user %q must be between 0 and 100", e.Percentage, e.UserID)
		}
		total = total.Add(e.Percentage)
	}
	if total.Sub(hundred).Abs().GreaterThan(percentTolerance) {
		return nil, apperr.Newf(apperr.ErrSplitMismatch, "percentages add up to %s, expected 100", total)
	}

	cents := decimal.NewFromInt(int64(amount))
	splits := make([]models.Split, len(entries))
	var assigned money.Amount
	last := len(entries) - 1
	for i, e := range entries {
		pct := e.Percentage
		splits[i] = models.Split{UserID: e.UserID, Percentage: &pct}
		if i == last {
			break
		}
		owed := money.Amount(cents.Mul(pct).Shift(-2).Round(0).IntPart())
		splits[i].Amount = owed
		assigned += owed
	}

	residual := amount - assigned
	if residual < 0 {
		return nil, apperr.Newf(apperr.ErrSplitMismatch, "rounded percentages exceed the expense amount by %s", -residual)
	}
	splits[last].Amount = residual
	return splits, nil
}

func shareSplit(amount money.Amount, entries []SplitEntry) ([]models.Split, error) {
	var totalShares int64
	for _, e := range entries {
		if e.Shares <= 0 || e.Shares > MaxShares {
			return nil, apperr.Newf(apperr.ErrInvalidShare, "share count %d for user %q must be between 1 and %d", e.Shares, e.UserID, MaxShares)
		}
		totalShares += e.Shares
	}

	splits := make([]models.Split, len(entries))
	var assigned money.Amount
	for i, e := range entries {
		owed := money.Amount(int64(amount) * e.Shares / totalShares)
		splits[i] = models.Split{UserID: e.UserID, Amount: owed, Shares: e.Shares}
		assigned += owed
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return entries[order[a]].Shares > entries[order[b]].Shares
	})

	// Each floor drops less than one cent, so the remainder is below len(entries).
	remainder := int(amount - assigned)
	for k := 0; k < remainder; k++ {
		splits[order[k%len(order)]].Amount++
	}
	return splits, nil
}
