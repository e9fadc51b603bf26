package calculator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/money"
)

func TestSimplify(t *testing.T) {
	tests := []struct {
		name string
		net  map[string]money.Amount
		want []models.Balance
	}{
		{
			name: "one creditor two debtors",
			net:  map[string]money.Amount{"A": 600, "B": -300, "C": -300},
			want: []models.Balance{
				{From: "B", To: "A", Amount: 300},
				{From: "C", To: "A", Amount: 300},
			},
		},
		{
			name: "after partial settlement",
			net:  map[string]money.Amount{"A": 300, "B": 0, "C": -300},
			want: []models.Balance{
				{From: "C", To: "A", Amount: 300},
			},
		},
		{
			name: "largest debtor pays largest creditor first",
			net:  map[string]money.Amount{"A": 500, "B": 200, "C": -650, "D": -50},
			want: []models.Balance{
				{From: "C", To: "A", Amount: 500},
				{From: "C", To: "B", Amount: 150},
				{From: "D", To: "B", Amount: 50},
			},
		},
		{
			name: "ties broken by ascending user id",
			net:  map[string]money.Amount{"d": 100, "c": 100, "b": -100, "a": -100},
			want: []models.Balance{
				{From: "a", To: "c", Amount: 100},
				{From: "b", To: "d", Amount: 100},
			},
		},
		{
			name: "all settled",
			net:  map[string]money.Amount{"A": 0, "B": 0},
			want: nil,
		},
		{
			name: "empty group",
			net:  map[string]money.Amount{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Simplify(tt.net)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimplifyIsDeterministic(t *testing.T) {
	net := map[string]money.Amount{"u1": 250, "u2": 250, "u3": -250, "u4": -250, "u5": 0}
	first := Simplify(net)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Simplify(net))
	}
}

// randomNet builds a zero-sum balance vector over n users.
func randomNet(rng *rand.Rand, n int) map[string]money.Amount {
	net := make(map[string]money.Amount, n)
	var total money.Amount
	for i := 0; i < n-1; i++ {
		v := money.Amount(rng.Int63n(20001) - 10000)
		if rng.Intn(5) == 0 {
			v = 0
		}
		net[fmt.Sprintf("user-%02d", i)] = v
		total += v
	}
	net[fmt.Sprintf("user-%02d", n-1)] = -total
	return net
}

func TestSimplifyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		net := randomNet(rng, 2+rng.Intn(12))

		payments := Simplify(net)

		for _, p := range payments {
			require.Positive(t, int64(p.Amount))
			require.NotEqual(t, p.From, p.To)
		}
		for userID, v := range ApplyPayments(net, payments) {
			require.Equal(t, money.Amount(0), v, "user %s not settled for %v", userID, net)
		}
	}
}

func TestSimplifyMinimalityBound(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 500; i++ {
		net := randomNet(rng, 2+rng.Intn(12))

		nonZero := 0
		for _, v := range net {
			if v != 0 {
				nonZero++
			}
		}

		payments := Simplify(net)
		if nonZero == 0 {
			assert.Empty(t, payments)
			continue
		}
		assert.LessOrEqual(t, len(payments), nonZero-1, "net=%v", net)
	}
}

func TestSimplifyExcludesZeroBalances(t *testing.T) {
	payments := Simplify(map[string]money.Amount{"A": 100, "B": 0, "C": -100})
	for _, p := range payments {
		assert.NotEqual(t, "B", p.From)
		assert.NotEqual(t, "B", p.To)
	}
}
