// Package storetest holds the behaviour every storage.Store must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
	"github.com/mmynk/equalsplit/internal/storage"
)

// Run exercises a fresh store returned by open for every subtest.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	ctx := context.Background()

	seed := func(t *testing.T, s storage.Store) *models.Group {
		t.Helper()
		for _, u := range []*models.User{
			{ID: "alice", Name: "Alice", Email: "alice@example.com"},
			{ID: "bob", Name: "Bob", Email: "bob@example.com"},
			{ID: "carol", Name: "Carol", Email: "carol@example.org"},
		} {
			require.NoError(t, s.CreateUser(ctx, u))
		}
		g := &models.Group{Name: "Flat", CreatedBy: "alice", Members: []string{"alice", "bob", "carol"}}
		require.NoError(t, s.CreateGroup(ctx, g))
		return g
	}

	t.Run("CreateUser fills ID and CreatedAt", func(t *testing.T) {
		s := open(t)
		u := &models.User{Name: "Dan", Email: "dan@example.com"}
		require.NoError(t, s.CreateUser(ctx, u))
		assert.NotEmpty(t, u.ID)
		assert.False(t, u.CreatedAt.IsZero())

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dan", got.Name)
		assert.Equal(t, "dan@example.com", got.Email)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Email: "x@example.com"}))
		err := s.CreateUser(ctx, &models.User{ID: "u2", Email: "X@example.com"})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("user lookups", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		u, err := s.GetUserByEmail(ctx, "BOB@example.com")
		require.NoError(t, err)
		assert.Equal(t, "bob", u.ID)

		_, err = s.GetUser(ctx, "nobody")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = s.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		users, err := s.GetUsers(ctx, []string{"alice", "carol", "ghost"})
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "Carol", users["carol"].Name)

		users, err = s.GetUsers(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("SearchUsers matches a case-insensitive fragment", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		found, err := s.SearchUsers(ctx, "EXAMPLE.COM", 10)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "alice", found[0].ID)
		assert.Equal(t, "bob", found[1].ID)

		found, err = s.SearchUsers(ctx, "example", 1)
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("group membership keeps insertion order", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		require.NoError(t, s.CreateUser(ctx, &models.User{ID: "dan", Email: "dan@example.com"}))

		require.NoError(t, s.AddGroupMember(ctx, g.ID, "dan"))
		err := s.AddGroupMember(ctx, g.ID, "dan")
		assert.ErrorIs(t, err, apperr.ErrAlreadyMember)

		require.NoError(t, s.RemoveGroupMember(ctx, g.ID, "bob"))

		got, err := s.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "carol", "dan"}, got.Members)
		assert.Equal(t, "alice", got.CreatedBy)
		assert.Equal(t, "Flat", got.Name)

		err = s.RemoveGroupMember(ctx, g.ID, "bob")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		err = s.AddGroupMember(ctx, "missing", "dan")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("ListGroupsForUser", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		other := &models.Group{Name: "Trip", CreatedBy: "bob", Members: []string{"bob"}, CreatedAt: g.CreatedAt.Add(time.Hour)}
		require.NoError(t, s.CreateGroup(ctx, other))

		groups, err := s.ListGroupsForUser(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, other.ID, groups[0].ID)
		assert.Equal(t, g.ID, groups[1].ID)

		groups, err = s.ListGroupsForUser(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, groups, 1)
	})

	t.Run("expense round trip", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		pct := decimal.RequireFromString("33.33")
		e := &models.Expense{
			GroupID:     g.ID,
			Description: "Groceries",
			Amount:      1000,
			PaidBy:      "alice",
			SplitType:   models.SplitPercentage,
			Splits: []models.Split{
				{UserID: "carol", Amount: 333, Percentage: &pct},
				{UserID: "alice", Amount: 333, Percentage: &pct},
				{UserID: "bob", Amount: 334, Percentage: ptr(decimal.RequireFromString("33.34"))},
			},
			CreatedBy: "bob",
		}
		require.NoError(t, s.AppendExpense(ctx, e))
		require.NotEmpty(t, e.ID)

		got, err := s.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Groceries", got.Description)
		assert.Equal(t, money.Amount(1000), got.Amount)
		assert.Equal(t, models.SplitPercentage, got.SplitType)
		assert.Equal(t, "bob", got.CreatedBy)
		assert.Equal(t, []string{"carol", "alice", "bob"}, got.Participants())
		require.NotNil(t, got.Splits[2].Percentage)
		assert.True(t, got.Splits[2].Percentage.Equal(decimal.RequireFromString("33.34")))
		assert.WithinDuration(t, e.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("shares splits keep their counts", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		e := &models.Expense{
			GroupID: g.ID, Amount: 300, PaidBy: "bob", SplitType: models.SplitShares, CreatedBy: "bob",
			Splits: []models.Split{{UserID: "alice", Amount: 100, Shares: 1}, {UserID: "bob", Amount: 200, Shares: 2}},
		}
		require.NoError(t, s.AppendExpense(ctx, e))

		got, err := s.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Splits[1].Shares)
		assert.Nil(t, got.Splits[0].Percentage)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		e := &models.Expense{GroupID: g.ID, Amount: 100, PaidBy: "alice", SplitType: models.SplitEqual,
			CreatedBy: "alice", Splits: []models.Split{{UserID: "alice", Amount: 100}}}
		require.NoError(t, s.AppendExpense(ctx, e))

		e.Splits[0].Amount = 1
		got, err := s.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		got.Splits[0].UserID = "mallory"

		again, err := s.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, models.Split{UserID: "alice", Amount: 100}, again.Splits[0])

		group, err := s.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		group.Members[0] = "mallory"
		group, err = s.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", group.Members[0])
	})

	t.Run("RemoveExpense deletes expense and splits", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		e := &models.Expense{GroupID: g.ID, Amount: 100, PaidBy: "carol", SplitType: models.SplitEqual,
			CreatedBy: "carol", Splits: []models.Split{{UserID: "carol", Amount: 100}}}
		require.NoError(t, s.AppendExpense(ctx, e))

		require.NoError(t, s.RemoveExpense(ctx, e.ID))

		_, err := s.GetExpense(ctx, e.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.ErrorIs(t, s.RemoveExpense(ctx, e.ID), apperr.ErrNotFound)

		expenses, err := s.ListExpenses(ctx, g.ID)
		require.NoError(t, err)
		assert.Empty(t, expenses)

		referenced, err := s.IsMemberReferenced(ctx, g.ID, "carol")
		require.NoError(t, err)
		assert.False(t, referenced)
	})

	t.Run("appending to an unknown group fails", func(t *testing.T) {
		s := open(t)
		err := s.AppendExpense(ctx, &models.Expense{GroupID: "missing", Amount: 1, PaidBy: "a", SplitType: models.SplitEqual})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		err = s.AppendSettlement(ctx, &models.Settlement{GroupID: "missing", FromUser: "a", ToUser: "b", Amount: 1})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("Snapshot returns ledger in append order", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		for i, payer := range []string{"alice", "bob", "carol"} {
			require.NoError(t, s.AppendExpense(ctx, &models.Expense{
				GroupID: g.ID, Description: payer, Amount: 300, PaidBy: payer, SplitType: models.SplitEqual,
				CreatedBy: payer, CreatedAt: base.Add(time.Duration(i) * time.Minute),
				Splits: []models.Split{{UserID: "alice", Amount: 100}, {UserID: "bob", Amount: 100}, {UserID: "carol", Amount: 100}},
			}))
		}
		require.NoError(t, s.AppendSettlement(ctx, &models.Settlement{
			GroupID: g.ID, FromUser: "bob", ToUser: "alice", Amount: 50, CreatedBy: "bob", CreatedAt: base, Note: "cash",
		}))

		snap, err := s.Snapshot(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.ID, snap.Group.ID)
		require.Len(t, snap.Expenses, 3)
		assert.Equal(t, "alice", snap.Expenses[0].Description)
		assert.Equal(t, "carol", snap.Expenses[2].Description)
		require.Len(t, snap.Settlements, 1)
		assert.Equal(t, "cash", snap.Settlements[0].Note)
		assert.Equal(t, money.Amount(50), snap.Settlements[0].Amount)

		_, err = s.Snapshot(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("settlements by user span groups", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		other := &models.Group{Name: "Trip", CreatedBy: "bob", Members: []string{"bob", "carol"}}
		require.NoError(t, s.CreateGroup(ctx, other))
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.AppendSettlement(ctx, &models.Settlement{GroupID: g.ID, FromUser: "bob", ToUser: "alice", Amount: 10, CreatedBy: "bob", CreatedAt: base}))
		require.NoError(t, s.AppendSettlement(ctx, &models.Settlement{GroupID: other.ID, FromUser: "carol", ToUser: "bob", Amount: 20, CreatedBy: "carol", CreatedAt: base.Add(time.Hour)}))
		require.NoError(t, s.AppendSettlement(ctx, &models.Settlement{GroupID: g.ID, FromUser: "carol", ToUser: "alice", Amount: 30, CreatedBy: "carol", CreatedAt: base.Add(2 * time.Hour)}))

		list, err := s.ListSettlementsByUser(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, money.Amount(20), list[0].Amount)
		assert.Equal(t, money.Amount(10), list[1].Amount)

		list, err = s.ListSettlements(ctx, g.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, money.Amount(10), list[0].Amount)
	})

	t.Run("settlements by user with equal timestamps", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		for _, amount := range []money.Amount{10, 20, 30, 40} {
			require.NoError(t, s.AppendSettlement(ctx, &models.Settlement{
				GroupID: g.ID, FromUser: "bob", ToUser: "alice", Amount: amount, CreatedBy: "bob", CreatedAt: at,
			}))
		}

		list, err := s.ListSettlementsByUser(ctx, "alice")
		require.NoError(t, err)
		amounts := make([]money.Amount, len(list))
		for i, st := range list {
			amounts[i] = st.Amount
		}
		assert.Equal(t, []money.Amount{40, 30, 20, 10}, amounts)
	})

	t.Run("IsMemberReferenced", func(t *testing.T) {
		s := open(t)
		g := seed(t, s)
		require.NoError(t, s.AppendExpense(ctx, &models.Expense{GroupID: g.ID, Amount: 100, PaidBy: "alice", SplitType: models.SplitExact,
			CreatedBy: "alice", Splits: []models.Split{{UserID: "bob", Amount: 100}}}))

		for userID, want := range map[string]bool{"alice": true, "bob": true, "carol": false} {
			got, err := s.IsMemberReferenced(ctx, g.ID, userID)
			require.NoError(t, err)
			assert.Equal(t, want, got, userID)
		}

		require.NoError(t, s.AppendSettlement(ctx, &models.Settlement{GroupID: g.ID, FromUser: "carol", ToUser: "alice", Amount: 5, CreatedBy: "carol"}))
		got, err := s.IsMemberReferenced(ctx, g.ID, "carol")
		require.NoError(t, err)
		assert.True(t, got)
	})
}

func ptr[T any](v T) *T { return &v }
