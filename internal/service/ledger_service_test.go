package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/calculator"
	"github.com/mmynk/equalsplit/internal/events"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
)

func TestAddExpense_ScenarioSummary(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Trip", "alice", "bob", "charlie")

	expense, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID:     group.ID,
		Description: "Dinner",
		Amount:      900,
		PaidBy:      "alice",
		SplitType:   models.SplitEqual,
		Requester:   "alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, expense.ID)
	assert.Equal(t, []string{"alice", "bob", "charlie"}, expense.Participants())
	assert.Equal(t, "alice", expense.CreatedBy)

	summary, err := env.ledger.GetSummary(ctx, group.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []models.Balance{
		{From: "bob", To: "alice", Amount: 300},
		{From: "charlie", To: "alice", Amount: 300},
	}, summary.Balances)
	assert.Equal(t, []calculator.MemberBalance{
		{UserID: "alice", Paid: 900, Owed: 300, Net: 600},
		{UserID: "bob", Paid: 0, Owed: 300, Net: -300},
		{UserID: "charlie", Paid: 0, Owed: 300, Net: -300},
	}, summary.MemberTotals)
	assert.Equal(t, map[string]money.Amount{"alice": 600, "bob": -300, "charlie": -300}, summary.NetBalances)
	require.Len(t, summary.MemberDetails, 3)
	assert.Equal(t, "Bob", summary.MemberDetails[1].Name)

	_, err = env.ledger.RecordSettlement(ctx, RecordSettlementRequest{
		GroupID:   group.ID,
		FromUser:  "bob",
		ToUser:    "alice",
		Amount:    300,
		Requester: "bob",
	})
	require.NoError(t, err)

	summary, err = env.ledger.GetSummary(ctx, group.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []models.Balance{{From: "charlie", To: "alice", Amount: 300}}, summary.Balances)
	require.Len(t, summary.Settlements, 1)
	require.Len(t, summary.Expenses, 1)
}

func TestAddExpense_SplitMismatchAppendsNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Flat", "alice", "bob")
	before := len(env.recorder.Events())

	_, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID:   group.ID,
		Amount:    1000,
		PaidBy:    "alice",
		SplitType: models.SplitExact,
		Splits: []calculator.SplitEntry{
			{UserID: "alice", Amount: 500},
			{UserID: "bob", Amount: 499},
		},
		Requester: "alice",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSplitMismatch)

	expenses, err := env.store.ListExpenses(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
	assert.Len(t, env.recorder.Events(), before)
}

func TestAddExpense_Rejections(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Flat", "alice", "bob")

	tests := []struct {
		name    string
		req     AddExpenseRequest
		wantErr error
	}{
		{
			name:    "no requester",
			req:     AddExpenseRequest{GroupID: group.ID, Amount: 100, PaidBy: "alice", SplitType: models.SplitEqual},
			wantErr: apperr.ErrUnauthenticated,
		},
		{
			name:    "requester outside the group",
			req:     AddExpenseRequest{GroupID: group.ID, Amount: 100, PaidBy: "alice", SplitType: models.SplitEqual, Requester: "charlie"},
			wantErr: apperr.ErrNotFound,
		},
		{
			name:    "unknown group",
			req:     AddExpenseRequest{GroupID: "missing", Amount: 100, PaidBy: "alice", SplitType: models.SplitEqual, Requester: "alice"},
			wantErr: apperr.ErrNotFound,
		},
		{
			name:    "payer outside the group",
			req:     AddExpenseRequest{GroupID: group.ID, Amount: 100, PaidBy: "charlie", SplitType: models.SplitEqual, Requester: "alice"},
			wantErr: apperr.ErrUnknownMember,
		},
		{
			name:    "unknown split type",
			req:     AddExpenseRequest{GroupID: group.ID, Amount: 100, PaidBy: "alice", SplitType: "halves", Requester: "alice"},
			wantErr: apperr.ErrInvalidSplitType,
		},
		{
			name:    "explicit empty participant list",
			req:     AddExpenseRequest{GroupID: group.ID, Amount: 100, PaidBy: "alice", SplitType: models.SplitEqual, Participants: []string{}, Requester: "alice"},
			wantErr: apperr.ErrEmptyParticipants,
		},
		{
			name:    "zero amount",
			req:     AddExpenseRequest{GroupID: group.ID, Amount: 0, PaidBy: "alice", SplitType: models.SplitEqual, Requester: "alice"},
			wantErr: apperr.ErrInvalidAmount,
		},
		{
			name: "description too long",
			req: AddExpenseRequest{
				GroupID: group.ID, Amount: 100, PaidBy: "alice", SplitType: models.SplitEqual, Requester: "alice",
				Description: string(make([]byte, maxDescriptionLen+1)),
			},
			wantErr: apperr.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.AddExpense(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	expenses, err := env.store.ListExpenses(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestAddExpense_PercentageAndShares(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Trip", "alice", "bob", "charlie")

	expense, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID:   group.ID,
		Amount:    1000,
		PaidBy:    "bob",
		SplitType: models.SplitPercentage,
		Splits: []calculator.SplitEntry{
			{UserID: "alice", Percentage: decimal.RequireFromString("33.33")},
			{UserID: "bob", Percentage: decimal.RequireFromString("33.33")},
			{UserID: "charlie", Percentage: decimal.RequireFromString("33.34")},
		},
		Requester: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(334), expense.Splits[2].Amount)

	expense, err = env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID:   group.ID,
		Amount:    1001,
		PaidBy:    "alice",
		SplitType: models.SplitShares,
		Splits: []calculator.SplitEntry{
			{UserID: "alice", Shares: 1},
			{UserID: "bob", Shares: 2},
			{UserID: "charlie", Shares: 2},
		},
		Requester: "charlie",
	})
	require.NoError(t, err)

	var total money.Amount
	for _, s := range expense.Splits {
		total += s.Amount
	}
	assert.Equal(t, money.Amount(1001), total)

	stored, err := env.ledger.GetExpense(ctx, expense.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, expense.Splits, stored.Splits)
}

func TestAddExpense_PublishesEvent(t *testing.T) {
	env := setupTestEnv(t)
	group := env.newGroup(t, "Flat", "alice", "bob")

	expense, err := env.ledger.AddExpense(context.Background(), AddExpenseRequest{
		GroupID: group.ID, Amount: 500, PaidBy: "bob", SplitType: models.SplitEqual, Requester: "bob",
	})
	require.NoError(t, err)

	evts := env.recorder.Events()
	last := evts[len(evts)-1]
	assert.Equal(t, events.ExpenseAdded, last.Type)
	assert.Equal(t, group.ID, last.GroupID)
	assert.Equal(t, "bob", last.ActorID)
	assert.Equal(t, expense, last.Payload)
}

func TestAddExpense_PublishFailureIsNotAnError(t *testing.T) {
	env := setupTestEnv(t, WithPublisher(failingPublisher{}))
	ctx := context.Background()
	group := env.newGroup(t, "Flat", "alice", "bob")

	_, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID: group.ID, Amount: 500, PaidBy: "alice", SplitType: models.SplitEqual, Requester: "alice",
	})
	require.NoError(t, err)

	expenses, err := env.store.ListExpenses(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestAddExpense_ConcurrentWritersKeepBalancesZeroSum(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Trip", "alice", "bob", "charlie")

	const writers = 30
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payer := group.Members[i%len(group.Members)]
			_, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
				GroupID:   group.ID,
				Amount:    money.Amount(100 + i),
				PaidBy:    payer,
				SplitType: models.SplitEqual,
				Requester: payer,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	summary, err := env.ledger.GetSummary(ctx, group.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, summary.Expenses, writers)

	var sum money.Amount
	for _, net := range summary.NetBalances {
		sum += net
	}
	assert.Zero(t, sum)
}

func TestDeleteExpense(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Flat", "alice", "bob")

	expense, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID: group.ID, Amount: 500, PaidBy: "bob", SplitType: models.SplitEqual, Requester: "alice",
	})
	require.NoError(t, err)

	t.Run("only the creator may delete", func(t *testing.T) {
		err := env.ledger.DeleteExpense(ctx, expense.ID, "bob")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("creator deletes", func(t *testing.T) {
		require.NoError(t, env.ledger.DeleteExpense(ctx, expense.ID, "alice"))

		_, err := env.ledger.GetExpense(ctx, expense.ID, "alice")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Equal(t, events.ExpenseDeleted, env.recorder.Types()[len(env.recorder.Types())-1])
	})

	t.Run("missing expense", func(t *testing.T) {
		err := env.ledger.DeleteExpense(ctx, expense.ID, "alice")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestGetExpense_NonMemberForbidden(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Flat", "alice", "bob")

	expense, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID: group.ID, Amount: 500, PaidBy: "bob", SplitType: models.SplitEqual, Requester: "alice",
	})
	require.NoError(t, err)

	_, err = env.ledger.GetExpense(ctx, expense.ID, "charlie")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRecordSettlement_Rejections(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Flat", "alice", "bob")

	tests := []struct {
		name    string
		req     RecordSettlementRequest
		wantErr error
	}{
		{
			name:    "same user on both sides",
			req:     RecordSettlementRequest{GroupID: group.ID, FromUser: "bob", ToUser: "bob", Amount: 100, Requester: "bob"},
			wantErr: apperr.ErrSelfSettlement,
		},
		{
			name:    "missing counterparty",
			req:     RecordSettlementRequest{GroupID: group.ID, FromUser: "bob", Amount: 100, Requester: "bob"},
			wantErr: apperr.ErrInvalidRequest,
		},
		{
			name:    "negative amount",
			req:     RecordSettlementRequest{GroupID: group.ID, FromUser: "bob", ToUser: "alice", Amount: -100, Requester: "bob"},
			wantErr: apperr.ErrInvalidAmount,
		},
		{
			name:    "amount above maximum",
			req:     RecordSettlementRequest{GroupID: group.ID, FromUser: "bob", ToUser: "alice", Amount: money.MaxAmount + 1, Requester: "bob"},
			wantErr: apperr.ErrInvalidAmount,
		},
		{
			name:    "counterparty outside the group",
			req:     RecordSettlementRequest{GroupID: group.ID, FromUser: "bob", ToUser: "charlie", Amount: 100, Requester: "bob"},
			wantErr: apperr.ErrUnknownMember,
		},
		{
			name:    "requester outside the group",
			req:     RecordSettlementRequest{GroupID: group.ID, FromUser: "bob", ToUser: "alice", Amount: 100, Requester: "charlie"},
			wantErr: apperr.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.RecordSettlement(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	settlements, err := env.store.ListSettlements(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, settlements)
}

func TestGetSummary_NonMemberNotFound(t *testing.T) {
	env := setupTestEnv(t)
	group := env.newGroup(t, "Flat", "alice", "bob")

	_, err := env.ledger.GetSummary(context.Background(), group.ID, "charlie")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetBalances_Names(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	group := env.newGroup(t, "Trip", "alice", "bob", "charlie")

	_, err := env.ledger.AddExpense(ctx, AddExpenseRequest{
		GroupID: group.ID, Amount: 900, PaidBy: "alice", SplitType: models.SplitEqual, Requester: "alice",
	})
	require.NoError(t, err)

	views, err := env.ledger.GetBalances(ctx, group.ID, "charlie")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Bob", views[0].FromUserName)
	assert.Equal(t, "Alice", views[0].ToUserName)
	assert.Equal(t, money.Amount(300), views[0].Amount)
	assert.Equal(t, "Charlie", views[1].FromUserName)
}

func TestListSettlements(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	flat := env.newGroup(t, "Flat", "alice", "bob")
	trip := env.newGroup(t, "Trip", "alice", "bob", "charlie")

	record := func(groupID, from, to string, amount money.Amount) *models.Settlement {
		st, err := env.ledger.RecordSettlement(ctx, RecordSettlementRequest{
			GroupID: groupID, FromUser: from, ToUser: to, Amount: amount, Requester: from,
		})
		require.NoError(t, err)
		return st
	}
	first := record(flat.ID, "bob", "alice", 100)
	second := record(trip.ID, "alice", "charlie", 200)
	record(trip.ID, "charlie", "bob", 300)

	all, err := env.ledger.ListSettlements(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	inFlat, err := env.ledger.ListSettlements(ctx, "alice", flat.ID)
	require.NoError(t, err)
	require.Len(t, inFlat, 1)
	assert.Equal(t, first.ID, inFlat[0].ID)

	none, err := env.ledger.ListSettlements(ctx, "alice", "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
