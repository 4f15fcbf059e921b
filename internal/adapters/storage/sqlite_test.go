package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/adapters/storage"
	"github.com/alejandrodnm/updownbot/internal/domain"
)

func makeTrade(id, strat string, pnl float64, closedAt time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		ID:            id,
		Strategy:      strat,
		ConditionID:   "0xcond",
		Side:          domain.SideUp,
		Shares:        100,
		EntryPrice:    0.80,
		ExitPrice:     0.94,
		EntryFee:      0.32,
		ExitFee:       0.11,
		GasUSD:        0.02,
		CapitalBefore: 100,
		CapitalAfter:  100 + pnl,
		PnL:           pnl,
		ROI:           pnl / 80,
		Reason:        "take_profit",
		OpenedAt:      closedAt.Add(-2 * time.Minute).UTC().Truncate(time.Second),
		ClosedAt:      closedAt.UTC().Truncate(time.Second),
	}
}

func TestSQLiteLedger_AppendAndQuery(t *testing.T) {
	db, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	require.NoError(t, db.AppendTrade(context.Background(), makeTrade("t1", "certainty", 13.55, now.Add(-time.Hour))))
	require.NoError(t, db.AppendTrade(context.Background(), makeTrade("t2", "lag", -4.20, now)))

	trades, err := db.TradesSince(context.Background(), now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// orden ascendente por cierre
	assert.Equal(t, "t1", trades[0].ID)
	assert.Equal(t, "t2", trades[1].ID)

	got := trades[0]
	assert.Equal(t, "certainty", got.Strategy)
	assert.Equal(t, domain.SideUp, got.Side)
	assert.Equal(t, 100, got.Shares)
	assert.InDelta(t, 13.55, got.PnL, 1e-9)
	assert.Equal(t, "take_profit", got.Reason)
}

func TestSQLiteLedger_TradesSinceFilters(t *testing.T) {
	db, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	require.NoError(t, db.AppendTrade(context.Background(), makeTrade("old", "arbitrage", 1, now.Add(-24*time.Hour))))
	require.NoError(t, db.AppendTrade(context.Background(), makeTrade("new", "arbitrage", 2, now)))

	trades, err := db.TradesSince(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "new", trades[0].ID)
}

func TestSQLiteLedger_DuplicateIDRejected(t *testing.T) {
	db, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	defer db.Close()

	tr := makeTrade("dup", "lag", 1, time.Now())
	require.NoError(t, db.AppendTrade(context.Background(), tr))
	assert.Error(t, db.AppendTrade(context.Background(), tr), "ledger rows are immutable")
}
