package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func book(bids, asks []BookEntry) OrderBook {
	return OrderBook{TokenID: "tok", Bids: bids, Asks: asks}
}

func TestOrderBook_BestAndMid(t *testing.T) {
	ob := book(ladder(0.48, 50, 0.45, 100), ladder(0.52, 30, 0.55, 80))

	assert.Equal(t, 0.48, ob.BestBid())
	assert.Equal(t, 0.52, ob.BestAsk())
	assert.InDelta(t, 0.50, ob.Midpoint(), 1e-9)
	assert.InDelta(t, 0.04, ob.Spread(), 1e-9)
}

func TestOrderBook_Empty(t *testing.T) {
	var ob OrderBook
	assert.Equal(t, 0.0, ob.BestBid())
	assert.Equal(t, 0.0, ob.BestAsk())
	assert.Equal(t, 0.0, ob.Midpoint())
	assert.Equal(t, 0.0, ob.Imbalance(5))
	assert.Equal(t, 0.0, ob.Microprice())
}

func TestOrderBook_Imbalance(t *testing.T) {
	// bids 150, asks 50 en el top 2 → (150-50)/200 = 0.5
	ob := book(ladder(0.48, 100, 0.47, 50), ladder(0.52, 30, 0.53, 20, 0.90, 1000))
	assert.InDelta(t, 0.5, ob.Imbalance(2), 1e-9)
}

func TestOrderBook_Microprice(t *testing.T) {
	// bid 0.48×80, ask 0.52×20 → micro = (0.48·20 + 0.52·80)/100 = 0.512
	ob := book(ladder(0.48, 80), ladder(0.52, 20))
	assert.InDelta(t, 0.512, ob.Microprice(), 1e-9)
	// micro > mid: presión al alza (más tamaño en el bid)
	assert.Greater(t, ob.MicropricePressure(), 0.0)
}

func TestSide_Opposite(t *testing.T) {
	assert.Equal(t, SideDown, SideUp.Opposite())
	assert.Equal(t, SideUp, SideDown.Opposite())
}

func TestOpenPosition_IsStale(t *testing.T) {
	p := OpenPosition{ConditionID: "c1", TokenID: "t1"}
	assert.False(t, p.IsStale("c1", "t1"))
	assert.True(t, p.IsStale("c2", "t1"))
	assert.True(t, p.IsStale("c1", "t2"))
}
