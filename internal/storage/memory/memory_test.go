package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/storage"
	"github.com/mmynk/equalsplit/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := &models.Group{Name: "Busy", CreatedBy: "a", Members: []string{"a", "b"}}
	require.NoError(t, s.CreateGroup(ctx, g))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendExpense(ctx, &models.Expense{GroupID: g.ID, Amount: 2, PaidBy: "a", SplitType: models.SplitEqual,
				Splits: []models.Split{{UserID: "a", Amount: 1}, {UserID: "b", Amount: 1}}})
			_, _ = s.Snapshot(ctx, g.ID)
		}()
	}
	wg.Wait()

	expenses, err := s.ListExpenses(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, expenses, 50)
}
