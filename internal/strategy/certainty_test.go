package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

func certaintyTestConfig() CertaintyConfig {
	cfg := DefaultCertaintyConfig()
	cfg.Warmup = 0
	cfg.ConfirmTicks = 1
	cfg.ExitConfirmTicks = 1
	cfg.Cooldown = 0
	cfg.MinShares = 1
	return cfg
}

// lateWorld places the tick inside the entry window, with DOWN priced far
// outside the band so only UP can qualify.
func lateWorld(at time.Time, upBid, upAsk float64) domain.WorldState {
	w := makeWorld(at, 100000, upBid, upAsk, 0.20, 0.22)
	w.IntervalEnd = at.Add(5 * time.Minute)
	return w
}

func TestCertainty_EntersOnlyInsideBand(t *testing.T) {
	exec := newFakeExec(100)
	c := NewCertainty(certaintyTestConfig(), exec, &fakeLedger{}, nil)
	ctx := context.Background()

	// ask 0.78: below the band, but it opens the live candle
	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.76, 0.78)))
	assert.Equal(t, 0, exec.buys)

	// ask 0.80: in band, candle close ≥ open → bullish → entry
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.78, 0.80)))
	require.Equal(t, 1, exec.buys)

	pos, ok := c.Position()
	require.True(t, ok)
	assert.Equal(t, domain.SideUp, pos.Side)
	assert.InDelta(t, 0.80, pos.EntryPrice, 1e-9)

	// ask 0.81 with the position open: no second entry
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(2*time.Second), 0.79, 0.81)))
	assert.Equal(t, 1, exec.buys)
}

func TestCertainty_RejectsBearishMomentum(t *testing.T) {
	exec := newFakeExec(100)
	c := NewCertainty(certaintyTestConfig(), exec, &fakeLedger{}, nil)
	ctx := context.Background()

	// the candle opens at 0.85; a drop into the band is distribution, not
	// conviction
	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.83, 0.85)))
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.78, 0.80)))

	assert.Equal(t, 0, exec.buys)
	_, ok := c.Position()
	assert.False(t, ok)
}

func TestCertainty_SkipsOutsideEntryWindow(t *testing.T) {
	exec := newFakeExec(100)
	c := NewCertainty(certaintyTestConfig(), exec, &fakeLedger{}, nil)

	w := makeWorld(t0, 100000, 0.78, 0.80, 0.20, 0.22)
	w.IntervalEnd = t0.Add(14 * time.Minute) // aún quedan 14 min

	require.NoError(t, c.OnTick(context.Background(), w))
	require.NoError(t, c.OnTick(context.Background(), w))
	assert.Equal(t, 0, exec.buys)
}

func TestCertainty_WarmupBlocksEntry(t *testing.T) {
	cfg := certaintyTestConfig()
	cfg.Warmup = 60 * time.Second
	exec := newFakeExec(100)
	c := NewCertainty(cfg, exec, &fakeLedger{}, nil)
	ctx := context.Background()

	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.78, 0.80)))
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(30*time.Second), 0.78, 0.80)))
	assert.Equal(t, 0, exec.buys, "inside warmup")

	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(61*time.Second), 0.78, 0.80)))
	assert.Equal(t, 1, exec.buys, "past warmup")
}

func TestCertainty_SkipsWideSpread(t *testing.T) {
	exec := newFakeExec(100)
	c := NewCertainty(certaintyTestConfig(), exec, &fakeLedger{}, nil)
	ctx := context.Background()

	// spread 0.10 > MaxSpread 0.03
	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.70, 0.80)))
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.70, 0.80)))
	assert.Equal(t, 0, exec.buys)
}

func TestCertainty_FeedDisagreementBlocksEntry(t *testing.T) {
	exec := newFakeExec(100)
	rec := &spyRecorder{}
	c := NewCertainty(certaintyTestConfig(), exec, &fakeLedger{}, rec)
	ctx := context.Background()

	// en banda y alcista, pero los feeds de spot no están de acuerdo
	w := lateWorld(t0, 0.78, 0.80)
	w.FeedsDisagree = true
	require.NoError(t, c.OnTick(ctx, w))
	assert.Equal(t, 0, exec.buys)
	assert.True(t, rec.sawSkip(SkipFeedDisagreement))

	// mismo mundo con los feeds reconciliados
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.78, 0.80)))
	assert.Equal(t, 1, exec.buys)
}

func TestCertainty_DisqualifiedSideDoesNotBlockTheOther(t *testing.T) {
	exec := newFakeExec(100)
	c := NewCertainty(certaintyTestConfig(), exec, &fakeLedger{}, nil)
	ctx := context.Background()

	// UP está en banda pero con spread 0.10; DOWN califica del todo
	w := makeWorld(t0, 100000, 0.72, 0.82, 0.78, 0.80)
	w.IntervalEnd = t0.Add(5 * time.Minute)
	require.NoError(t, c.OnTick(ctx, w))

	require.Equal(t, 1, exec.buys)
	pos, ok := c.Position()
	require.True(t, ok)
	assert.Equal(t, domain.SideDown, pos.Side)
	assert.InDelta(t, 0.80, pos.EntryPrice, 1e-9)
}

func TestCertainty_StopMovesReentryBand(t *testing.T) {
	exec := newFakeExec(100)
	ledger := &fakeLedger{}
	c := NewCertainty(certaintyTestConfig(), exec, ledger, nil)
	ctx := context.Background()

	lo, hi := c.RequiredBand()
	assert.InDelta(t, 0.80, lo, 1e-9)
	assert.InDelta(t, 0.82, hi, 1e-9)

	// entrada en 0.80
	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.78, 0.80)))
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.78, 0.80)))
	_, ok := c.Position()
	require.True(t, ok)

	// el bid cae a 0.745 ≤ stop 0.75 y la venta llena a 0.745
	exec.sellFillPx = 0.745
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(2*time.Second), 0.745, 0.78)))

	_, ok = c.Position()
	require.False(t, ok, "stop-loss closed the position")
	require.Len(t, ledger.trades, 1)
	assert.Equal(t, "stop_loss", ledger.trades[0].Reason)

	// la banda sigue ahora a la salida realizada: 0.745 ± 0.02
	lo, hi = c.RequiredBand()
	assert.InDelta(t, 0.725, lo, 1e-9)
	assert.InDelta(t, 0.765, hi, 1e-9)

	// 0.80 ya no vale; 0.74 sí (en el minuto siguiente, con vela nueva)
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(3*time.Second), 0.78, 0.80)))
	assert.Equal(t, 1, exec.buys)
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(61*time.Second), 0.73, 0.74)))
	assert.Equal(t, 2, exec.buys)

	// la reentrada limpia la banda del stop
	lo, hi = c.RequiredBand()
	assert.InDelta(t, 0.80, lo, 1e-9)
	assert.InDelta(t, 0.82, hi, 1e-9)
}

func TestCertainty_TakeProfitExit(t *testing.T) {
	exec := newFakeExec(100)
	ledger := &fakeLedger{}
	c := NewCertainty(certaintyTestConfig(), exec, ledger, nil)
	ctx := context.Background()

	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.78, 0.80)))
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.78, 0.80)))
	require.Equal(t, 1, exec.buys)

	// el bid entra en la zona de beneficio
	exec.sellFillPx = 0.95
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(2*time.Second), 0.95, 0.97)))

	_, ok := c.Position()
	assert.False(t, ok)
	require.Len(t, ledger.trades, 1)
	assert.Equal(t, "take_profit", ledger.trades[0].Reason)
	assert.Positive(t, ledger.trades[0].PnL)
}

func TestCertainty_IntervalRolloverResetsSubState(t *testing.T) {
	exec := newFakeExec(100)
	c := NewCertainty(certaintyTestConfig(), exec, &fakeLedger{}, nil)
	ctx := context.Background()

	// provoca un stop para fijar la banda de reentrada
	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.78, 0.80)))
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.78, 0.80)))
	exec.sellFillPx = 0.745
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(2*time.Second), 0.745, 0.78)))
	lo, _ := c.RequiredBand()
	require.InDelta(t, 0.725, lo, 1e-9)

	// nuevo intervalo → banda por defecto otra vez
	next := lateWorld(t0.Add(15*time.Minute), 0.50, 0.52)
	next.ConditionID = "interval-2"
	require.NoError(t, c.OnTick(ctx, next))

	lo, hi := c.RequiredBand()
	assert.InDelta(t, 0.80, lo, 1e-9)
	assert.InDelta(t, 0.82, hi, 1e-9)
}

func TestCertainty_SettlementClosesLedger(t *testing.T) {
	exec := newFakeExec(100)
	ledger := &fakeLedger{}
	c := NewCertainty(certaintyTestConfig(), exec, ledger, nil)
	ctx := context.Background()

	require.NoError(t, c.OnTick(ctx, lateWorld(t0, 0.78, 0.80)))
	require.NoError(t, c.OnTick(ctx, lateWorld(t0.Add(time.Second), 0.78, 0.80)))
	pos, ok := c.Position()
	require.True(t, ok)

	end := lateWorld(t0.Add(5*time.Minute), 0.99, 1.0)
	require.NoError(t, c.OnIntervalEnd(ctx, end, domain.SideUp))

	_, ok = c.Position()
	assert.False(t, ok)
	require.Len(t, ledger.trades, 1)
	rec := ledger.trades[0]
	assert.Equal(t, "settlement", rec.Reason)
	assert.Equal(t, 1.0, rec.ExitPrice)
	assert.InDelta(t, float64(pos.Shares)*(1-0.80)-0.02, rec.PnL, 1e-6)
}
