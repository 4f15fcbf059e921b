package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ladder(entries ...float64) []BookEntry {
	// pares (price, size)
	out := make([]BookEntry, 0, len(entries)/2)
	for i := 0; i+1 < len(entries); i += 2 {
		out = append(out, BookEntry{Price: entries[i], Size: entries[i+1]})
	}
	return out
}

func TestCostToBuy_SweepsBestFirst(t *testing.T) {
	asks := ladder(0.40, 100, 0.45, 50, 0.50, 200)

	fill, err := CostToBuy(asks, 120, 0)
	require.NoError(t, err)

	// 100 @ 0.40 + 20 @ 0.45 = 40 + 9 = 49
	assert.InDelta(t, 49.0, fill.Notional, 1e-9)
	assert.InDelta(t, 49.0/120.0, fill.AvgPrice, 1e-9)
	assert.Equal(t, 0.45, fill.WorstPrice)
	assert.Equal(t, 120, fill.Shares)
}

func TestCostToBuy_FeeInclusive(t *testing.T) {
	asks := ladder(0.50, 100)

	fill, err := CostToBuy(asks, 100, 200) // 200 bps = 2%
	require.NoError(t, err)

	assert.InDelta(t, 50.0, fill.Notional, 1e-9)
	assert.InDelta(t, 1.0, fill.Fee, 1e-9)
	assert.InDelta(t, 51.0, fill.Total, 1e-9)
}

func TestCostToBuy_InsufficientDepth(t *testing.T) {
	asks := ladder(0.40, 10)

	_, err := CostToBuy(asks, 11, 0)
	assert.ErrorIs(t, err, ErrInsufficientDepth)
}

func TestCostToBuy_Monotone(t *testing.T) {
	asks := ladder(0.31, 7, 0.35, 13, 0.42, 40, 0.60, 5)

	prev := 0.0
	for n := 1; n <= 65; n++ {
		fill, err := CostToBuy(asks, n, 150)
		require.NoError(t, err, "n=%d", n)
		assert.GreaterOrEqual(t, fill.Total, prev, "cost must be non-decreasing at n=%d", n)
		prev = fill.Total
	}
}

func TestProceedsFromSell_StopsBelowMinPrice(t *testing.T) {
	bids := ladder(0.60, 10, 0.55, 10, 0.40, 100)

	// minPrice 0.50: el nivel 0.40 corta el barrido, no se salta.
	_, err := ProceedsFromSell(bids, 25, 0, 0.50)
	assert.ErrorIs(t, err, ErrInsufficientDepth)

	fill, err := ProceedsFromSell(bids, 20, 0, 0.50)
	require.NoError(t, err)
	assert.InDelta(t, 0.60*10+0.55*10, fill.Notional, 1e-9)
	assert.Equal(t, 0.55, fill.WorstPrice)
}

func TestRoundTrip_SymmetricLadder(t *testing.T) {
	// bids espejo de los asks: comprar N y vender N nunca puede ganar dinero.
	asks := ladder(0.50, 20, 0.52, 30, 0.55, 50)
	bids := ladder(0.55, 50, 0.52, 30, 0.50, 20)

	for _, n := range []int{1, 10, 20, 45, 100} {
		buy, err := CostToBuy(asks, n, 100)
		require.NoError(t, err)
		sell, err := ProceedsFromSell(bids, n, 100, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, sell.Total, buy.Total, "n=%d", n)
	}
}

func TestMaxSharesForBudget_LargestFeasible(t *testing.T) {
	asks := ladder(0.40, 100, 0.50, 100)
	budget := 55.0

	n, err := MaxSharesForBudget(asks, 0, budget, 1)
	require.NoError(t, err)

	// N cabe, N+1 se pasa de presupuesto.
	fill, err := CostToBuy(asks, n, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, fill.Total, budget)

	over, err := CostToBuy(asks, n+1, 0)
	require.NoError(t, err)
	assert.Greater(t, over.Total, budget)

	// 100 @ 0.40 = 40, quedan 15 → 30 shares más @ 0.50
	assert.Equal(t, 130, n)
}

func TestMaxSharesForBudget_BudgetTooSmall(t *testing.T) {
	asks := ladder(0.40, 100)

	_, err := MaxSharesForBudget(asks, 0, 1.0, 10)
	assert.ErrorIs(t, err, ErrBudgetTooSmall)
}

func TestMaxSharesForBudget_NoDepthForMinShares(t *testing.T) {
	asks := ladder(0.40, 5)

	_, err := MaxSharesForBudget(asks, 0, 1000, 10)
	assert.ErrorIs(t, err, ErrInsufficientDepth)
}

func TestLargestWhere(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi int
		limit  int
		want   int
		ok     bool
	}{
		{"all feasible", 1, 100, 100, 100, true},
		{"middle", 1, 100, 37, 37, true},
		{"only lo", 1, 100, 1, 1, true},
		{"none", 5, 100, 4, 0, false},
		{"empty range", 10, 5, 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LargestWhere(tt.lo, tt.hi, func(n int) bool { return n <= tt.limit })
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
