// Package service implements the ledger and group operations on top of a
// storage.Store. Transports (REST, Connect) translate requests into these
// calls and pass the authenticated requester explicitly.
package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/calculator"
	"github.com/mmynk/equalsplit/internal/events"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
	"github.com/mmynk/equalsplit/internal/storage"
)

const (
	maxDescriptionLen = 200
	maxNoteLen        = 500
	maxSettlementList = 100
)

// LedgerService records expenses and settlements and derives balances.
type LedgerService struct {
	base
}

// NewLedgerService creates a LedgerService with the given storage backend.
func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	return &LedgerService{base: newBase(store, opts)}
}

// AddExpenseRequest is a finished expense submission.
type AddExpenseRequest struct {
	GroupID     string
	Description string
	Amount      money.Amount
	PaidBy      string
	SplitType   models.SplitType

	// Participants is read for equal splits. nil means every current member.
	Participants []string

	// Splits is read for exact, percentage and shares splits.
	Splits []calculator.SplitEntry

	Requester string
}

// RecordSettlementRequest is a direct payment between two members.
type RecordSettlementRequest struct {
	GroupID   string
	FromUser  string
	ToUser    string
	Amount    money.Amount
	Note      string
	Requester string
}

// GroupSummary is a group with its ledger and derived balances.
type GroupSummary struct {
	*models.Group
	MemberDetails []*models.User             `json:"member_details"`
	Expenses      []*models.Expense          `json:"expenses"`      // newest first
	Settlements   []*models.Settlement       `json:"settlements"`   // newest first
	NetBalances   map[string]money.Amount    `json:"net_balances"`  // user id to signed net
	MemberTotals  []calculator.MemberBalance `json:"member_totals"` // paid and owed per member
	Balances      []models.Balance           `json:"balances"`
}

// BalanceView is a suggested payment with display names.
type BalanceView struct {
	models.Balance
	FromUserName string `json:"from_user_name"`
	ToUserName   string `json:"to_user_name"`
}

func checkText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > max {
		return "", apperr.Newf(apperr.ErrInvalidRequest, "%s must be at most %d characters", field, max)
	}
	return value, nil
}

// AddExpense validates a split request and appends it to the group's ledger.
// Nothing is written when validation fails.
func (s *LedgerService) AddExpense(ctx context.Context, req AddExpenseRequest) (expense *models.Expense, err error) {
	slog.Info("AddExpense request received",
		"group_id", req.GroupID,
		"split_type", req.SplitType,
		"amount", req.Amount,
		"user_id", req.Requester,
	)
	ctx, done := s.startOp(ctx, "AddExpense",
		attribute.String("group_id", req.GroupID),
		attribute.String("split_type", string(req.SplitType)),
	)
	defer func() { done(err) }()

	if err := requireRequester(req.Requester); err != nil {
		return nil, err
	}
	if !req.SplitType.Valid() {
		return nil, apperr.Newf(apperr.ErrInvalidSplitType, "unknown split type %q", req.SplitType)
	}
	description, err := checkText("description", req.Description, maxDescriptionLen)
	if err != nil {
		return nil, err
	}

	err = s.withGroupLock(ctx, req.GroupID, func(ctx context.Context) error {
		group, err := s.memberGroup(ctx, req.GroupID, req.Requester)
		if err != nil {
			return err
		}
		if !group.HasMember(req.PaidBy) {
			return apperr.Newf(apperr.ErrUnknownMember, "payer %q is not a member of the group", req.PaidBy)
		}

		input := calculator.SplitInput{Participants: req.Participants, Entries: req.Splits}
		if req.SplitType == models.SplitEqual && req.Participants == nil {
			input.Participants = group.Members
		}
		splits, err := calculator.ValidateSplit(group.Members, req.SplitType, req.Amount, input)
		if err != nil {
			return err
		}

		expense = &models.Expense{
			GroupID:     group.ID,
			Description: description,
			Amount:      req.Amount,
			PaidBy:      req.PaidBy,
			SplitType:   req.SplitType,
			Splits:      splits,
			CreatedBy:   req.Requester,
			CreatedAt:   s.now(),
		}
		return s.store.AppendExpense(ctx, expense)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ExpensesAdded.WithLabelValues(string(expense.SplitType)).Inc()
	s.publish(ctx, events.New(events.ExpenseAdded, expense.GroupID, req.Requester, expense.CreatedAt, expense))

	slog.Info("AddExpense successful", "expense_id", expense.ID, "group_id", expense.GroupID, "splits_count", len(expense.Splits))
	return expense, nil
}

// DeleteExpense removes an expense. Only the user who recorded it may do so.
func (s *LedgerService) DeleteExpense(ctx context.Context, expenseID, requester string) (err error) {
	slog.Info("DeleteExpense request received", "expense_id", expenseID, "user_id", requester)
	ctx, done := s.startOp(ctx, "DeleteExpense", attribute.String("expense_id", expenseID))
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return err
	}

	existing, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}

	var deleted *models.Expense
	err = s.withGroupLock(ctx, existing.GroupID, func(ctx context.Context) error {
		// Re-read under the lock; a concurrent delete may have won.
		e, err := s.store.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if e.CreatedBy != requester {
			return apperr.Newf(apperr.ErrForbidden, "only the creator can delete expense %s", expenseID)
		}
		if err := s.store.RemoveExpense(ctx, expenseID); err != nil {
			return err
		}
		deleted = e
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.ExpensesDeleted.Inc()
	s.publish(ctx, events.New(events.ExpenseDeleted, deleted.GroupID, requester, s.now(), map[string]any{
		"expense_id":  deleted.ID,
		"description": deleted.Description,
		"amount":      deleted.Amount,
	}))

	slog.Info("DeleteExpense successful", "expense_id", expenseID, "group_id", deleted.GroupID)
	return nil
}

// RecordSettlement appends a payment from one member to another.
func (s *LedgerService) RecordSettlement(ctx context.Context, req RecordSettlementRequest) (settlement *models.Settlement, err error) {
	slog.Info("RecordSettlement request received",
		"group_id", req.GroupID,
		"from_user", req.FromUser,
		"to_user", req.ToUser,
		"amount", req.Amount,
		"user_id", req.Requester,
	)
	ctx, done := s.startOp(ctx, "RecordSettlement", attribute.String("group_id", req.GroupID))
	defer func() { done(err) }()

	if err := requireRequester(req.Requester); err != nil {
		return nil, err
	}
	if req.FromUser == "" || req.ToUser == "" {
		return nil, apperr.Newf(apperr.ErrInvalidRequest, "from_user and to_user are required")
	}
	if req.FromUser == req.ToUser {
		return nil, apperr.ErrSelfSettlement
	}
	if !req.Amount.Payable() {
		return nil, apperr.Newf(apperr.ErrInvalidAmount,
			"settlement amount %s must be greater than 0 and at most %s", req.Amount, money.MaxAmount)
	}
	note, err := checkText("note", req.Note, maxNoteLen)
	if err != nil {
		return nil, err
	}

	err = s.withGroupLock(ctx, req.GroupID, func(ctx context.Context) error {
		group, err := s.memberGroup(ctx, req.GroupID, req.Requester)
		if err != nil {
			return err
		}
		for _, userID := range []string{req.FromUser, req.ToUser} {
			if !group.HasMember(userID) {
				return apperr.Newf(apperr.ErrUnknownMember, "user %q is not a member of the group", userID)
			}
		}

		settlement = &models.Settlement{
			GroupID:   group.ID,
			FromUser:  req.FromUser,
			ToUser:    req.ToUser,
			Amount:    req.Amount,
			CreatedBy: req.Requester,
			CreatedAt: s.now(),
			Note:      note,
		}
		return s.store.AppendSettlement(ctx, settlement)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SettlementsRecorded.Inc()
	s.publish(ctx, events.New(events.SettlementRecorded, settlement.GroupID, req.Requester, settlement.CreatedAt, settlement))

	slog.Info("RecordSettlement successful", "settlement_id", settlement.ID, "group_id", settlement.GroupID)
	return settlement, nil
}

// GetSummary returns a group with its ledger, per-member balances and the
// simplified list of payments that would settle it. It reads one snapshot
// and takes no lock.
func (s *LedgerService) GetSummary(ctx context.Context, groupID, requester string) (summary *GroupSummary, err error) {
	slog.Info("GetSummary request received", "group_id", groupID, "user_id", requester)
	ctx, done := s.startOp(ctx, "GetSummary", attribute.String("group_id", groupID))
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	snap, err := s.store.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !snap.Group.HasMember(requester) {
		return nil, groupNotFound(groupID)
	}

	members, err := s.userDetails(ctx, snap.Group.Members)
	if err != nil {
		return nil, err
	}

	net := calculator.ComputeNetBalances(snap.Group.Members, snap.Expenses, snap.Settlements)
	summary = &GroupSummary{
		Group:         snap.Group,
		MemberDetails: members,
		Expenses:      newestFirst(snap.Expenses),
		Settlements:   newestFirst(snap.Settlements),
		NetBalances:   net,
		MemberTotals:  calculator.ComputeMemberBalances(snap.Group.Members, snap.Expenses, snap.Settlements),
		Balances:      calculator.Simplify(net),
	}

	slog.Info("GetSummary successful",
		"group_id", groupID,
		"expenses_count", len(summary.Expenses),
		"settlements_count", len(summary.Settlements),
		"balances_count", len(summary.Balances),
	)
	return summary, nil
}

// GetBalances returns the simplified payments for a group with user names.
func (s *LedgerService) GetBalances(ctx context.Context, groupID, requester string) (views []BalanceView, err error) {
	slog.Info("GetBalances request received", "group_id", groupID, "user_id", requester)
	ctx, done := s.startOp(ctx, "GetBalances", attribute.String("group_id", groupID))
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	snap, err := s.store.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !snap.Group.HasMember(requester) {
		return nil, groupNotFound(groupID)
	}

	balances := calculator.Simplify(calculator.ComputeNetBalances(snap.Group.Members, snap.Expenses, snap.Settlements))

	var ids []string
	for _, b := range balances {
		ids = append(ids, b.From, b.To)
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	views = make([]BalanceView, len(balances))
	for i, b := range balances {
		views[i] = BalanceView{
			Balance:      b,
			FromUserName: nameOf(users, b.From),
			ToUserName:   nameOf(users, b.To),
		}
	}
	return views, nil
}

// GetExpense returns one expense to a member of its group.
func (s *LedgerService) GetExpense(ctx context.Context, expenseID, requester string) (expense *models.Expense, err error) {
	ctx, done := s.startOp(ctx, "GetExpense", attribute.String("expense_id", expenseID))
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	expense, err = s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	group, err := s.store.GetGroup(ctx, expense.GroupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(requester) {
		return nil, apperr.Newf(apperr.ErrForbidden, "not a member of the expense's group")
	}
	return expense, nil
}

// ListSettlements returns the settlements the requester sent or received,
// newest first, optionally limited to one group.
func (s *LedgerService) ListSettlements(ctx context.Context, requester, groupID string) (settlements []*models.Settlement, err error) {
	ctx, done := s.startOp(ctx, "ListSettlements")
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	all, err := s.store.ListSettlementsByUser(ctx, requester)
	if err != nil {
		return nil, err
	}

	settlements = []*models.Settlement{}
	for _, st := range all {
		if groupID != "" && st.GroupID != groupID {
			continue
		}
		settlements = append(settlements, st)
		if len(settlements) == maxSettlementList {
			break
		}
	}
	return settlements, nil
}

func nameOf(users map[string]*models.User, id string) string {
	if u, ok := users[id]; ok {
		return u.Name
	}
	return unknownName
}

// newestFirst reverses an oldest-first ledger slice into a new slice.
func newestFirst[T any](items []T) []T {
	out := slices.Clone(items)
	slices.Reverse(out)
	if out == nil {
		out = []T{}
	}
	return out
}
