package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "12.34", want: 1234},
		{in: "12,34", want: 1234},
		{in: "9", want: 900},
		{in: "0.5", want: 50},
		{in: "12.345", want: 1235},
		{in: "12.344", want: 1234},
		{in: "-3.10", want: -310},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1e20", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "10.00", Amount(1000).String())
	assert.Equal(t, "0.07", Amount(7).String())
	assert.Equal(t, "-3.30", Amount(-330).String())
}

func TestJSON(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	t.Run("number in", func(t *testing.T) {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(`{"amount": 9.99}`), &p))
		assert.Equal(t, Amount(999), p.Amount)
	})

	t.Run("string in", func(t *testing.T) {
		var p payload
		require.NoError(t, json.Unmarshal([]byte(`{"amount": "1000"}`), &p))
		assert.Equal(t, Amount(100000), p.Amount)
	})

	t.Run("garbage in", func(t *testing.T) {
		var p payload
		require.Error(t, json.Unmarshal([]byte(`{"amount": "ten"}`), &p))
	})

	t.Run("number out", func(t *testing.T) {
		out, err := json.Marshal(payload{Amount: 30000})
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount": 300.00}`, string(out))
	})
}

func TestFromDecimalLimit(t *testing.T) {
	_, err := FromDecimal(decimal.New(1, 14))
	require.Error(t, err)

	got, err := FromDecimal(MaxAmount.Decimal())
	require.NoError(t, err)
	assert.Equal(t, MaxAmount, got)
}

func TestPayable(t *testing.T) {
	assert.True(t, Amount(1).Payable())
	assert.True(t, MaxAmount.Payable())
	assert.False(t, Amount(0).Payable())
	assert.False(t, Amount(-5).Payable())
	assert.False(t, (MaxAmount + 1).Payable())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, Amount(5), Amount(-5).Abs())
	assert.Equal(t, Amount(3), Min(3, 7))
	assert.Equal(t, Amount(10), Sum(1, 2, 3, 4))
	assert.Equal(t, Amount(42), Cents(42))
}
