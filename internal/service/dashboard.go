package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/mmynk/equalsplit/internal/calculator"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
)

const (
	recentPerKind  = 10
	recentActivity = 15
)

// Activity item types.
const (
	ActivityExpense    = "expense"
	ActivitySettlement = "settlement"
)

// Dashboard is the requester's position across all their groups.
type Dashboard struct {
	TotalOwedToYou money.Amount   `json:"total_owed_to_you"`
	TotalYouOwe    money.Amount   `json:"total_you_owe"`
	NetBalance     money.Amount   `json:"net_balance"`
	TotalGroups    int            `json:"total_groups"`
	RecentActivity []ActivityItem `json:"recent_activity"`
}

// ActivityItem is one expense or settlement in the recent activity feed.
type ActivityItem struct {
	Type         string       `json:"type"`
	ID           string       `json:"id"`
	GroupID      string       `json:"group_id"`
	GroupName    string       `json:"group_name"`
	Description  string       `json:"description,omitempty"`
	Amount       money.Amount `json:"amount"`
	PaidByName   string       `json:"paid_by_name,omitempty"`
	FromUserName string       `json:"from_user_name,omitempty"`
	ToUserName   string       `json:"to_user_name,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Dashboard totals what the requester is owed and owes according to the
// simplified balances of every group they belong to, and lists the most
// recent expenses and settlements across those groups.
func (s *LedgerService) Dashboard(ctx context.Context, requester string) (dash *Dashboard, err error) {
	slog.Info("Dashboard request received", "user_id", requester)
	ctx, done := s.startOp(ctx, "Dashboard")
	defer func() { done(err) }()

	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroupsForUser(ctx, requester)
	if err != nil {
		return nil, err
	}

	dash = &Dashboard{TotalGroups: len(groups), RecentActivity: []ActivityItem{}}
	groupNames := make(map[string]string, len(groups))
	var (
		expenses    []*models.Expense
		settlements []*models.Settlement
	)

	for _, g := range groups {
		snap, err := s.store.Snapshot(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		groupNames[g.ID] = snap.Group.Name
		expenses = append(expenses, snap.Expenses...)
		settlements = append(settlements, snap.Settlements...)

		net := calculator.ComputeNetBalances(snap.Group.Members, snap.Expenses, snap.Settlements)
		for _, b := range calculator.Simplify(net) {
			switch requester {
			case b.To:
				dash.TotalOwedToYou += b.Amount
			case b.From:
				dash.TotalYouOwe += b.Amount
			}
		}
	}
	dash.NetBalance = dash.TotalOwedToYou - dash.TotalYouOwe

	dash.RecentActivity, err = s.recentActivity(ctx, groupNames, expenses, settlements)
	if err != nil {
		return nil, err
	}

	slog.Info("Dashboard successful",
		"user_id", requester,
		"total_groups", dash.TotalGroups,
		"net_balance", dash.NetBalance,
	)
	return dash, nil
}

func (s *LedgerService) recentActivity(ctx context.Context, groupNames map[string]string, expenses []*models.Expense, settlements []*models.Settlement) ([]ActivityItem, error) {
	slices.SortStableFunc(expenses, func(a, b *models.Expense) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	slices.SortStableFunc(settlements, func(a, b *models.Settlement) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	expenses = expenses[:min(len(expenses), recentPerKind)]
	settlements = settlements[:min(len(settlements), recentPerKind)]

	var ids []string
	for _, e := range expenses {
		ids = append(ids, e.PaidBy)
	}
	for _, st := range settlements {
		ids = append(ids, st.FromUser, st.ToUser)
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]ActivityItem, 0, len(expenses)+len(settlements))
	for _, e := range expenses {
		items = append(items, ActivityItem{
			Type:        ActivityExpense,
			ID:          e.ID,
			GroupID:     e.GroupID,
			GroupName:   groupNames[e.GroupID],
			Description: e.Description,
			Amount:      e.Amount,
			PaidByName:  nameOf(users, e.PaidBy),
			CreatedAt:   e.CreatedAt,
		})
	}
	for _, st := range settlements {
		items = append(items, ActivityItem{
			Type:         ActivitySettlement,
			ID:           st.ID,
			GroupID:      st.GroupID,
			GroupName:    groupNames[st.GroupID],
			Description:  st.Note,
			Amount:       st.Amount,
			FromUserName: nameOf(users, st.FromUser),
			ToUserName:   nameOf(users, st.ToUser),
			CreatedAt:    st.CreatedAt,
		})
	}

	slices.SortStableFunc(items, func(a, b ActivityItem) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.Type, b.Type))
	})
	return items[:min(len(items), recentActivity)], nil
}
