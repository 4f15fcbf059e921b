package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/model"
)

// lagTestConfig keeps production defaults but removes the edge penalties and
// confirmation friction so the flow under test is the detection itself.
func lagTestConfig() LagConfig {
	cfg := DefaultLagConfig()
	cfg.MinEdgeCents = 0.3
	cfg.PressurePenaltyCents = 0
	cfg.DisagreePenaltyCents = 0
	cfg.FlowPenaltyCents = 0
	cfg.FlowBonusCents = 0
	cfg.ConfirmTicks = 1
	cfg.ExitConfirmTicks = 1
	cfg.MinShares = 1
	return cfg
}

func newTestLag(cfg LagConfig, exec *fakeExec, ledger *fakeLedger) *Lag {
	return NewLag(cfg, model.CalibratorConfig{}, model.LinearConfig{}, exec, ledger, nil)
}

func TestLag_ColdStartNeverProposes(t *testing.T) {
	exec := newFakeExec(1000)
	l := newTestLag(lagTestConfig(), exec, &fakeLedger{})

	// first snapshot ever, no history to compare against
	w := makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)
	require.NoError(t, l.OnTick(context.Background(), w))

	assert.Equal(t, 0, exec.buys)
	_, ok := l.Position()
	assert.False(t, ok)
}

func TestLag_SmallMoveIgnored(t *testing.T) {
	exec := newFakeExec(1000)
	l := newTestLag(lagTestConfig(), exec, &fakeLedger{})
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	// +$10 on the fast window, below the $25 threshold
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100010, 0.50, 0.51, 0.48, 0.49)))

	assert.Equal(t, 0, exec.buys)
}

func TestLag_NoWindowWhenMarketAlreadyRepriced(t *testing.T) {
	exec := newFakeExec(1000)
	l := newTestLag(lagTestConfig(), exec, &fakeLedger{})
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	// the spot jumps $40 but the UP mid already moved 2 cents with it
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.52, 0.53, 0.46, 0.47)))

	assert.Equal(t, 0, exec.buys)
	_, ok := l.Position()
	assert.False(t, ok)
}

func TestLag_EntersOnUnansweredSpotMove(t *testing.T) {
	exec := newFakeExec(1000)
	l := newTestLag(lagTestConfig(), exec, &fakeLedger{})
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	// +$40 with both mids flat → lag window → predicted 40 × 0.04 = 1.6¢
	// against a hurdle of 1¢ spread + 0.3¢ floor
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))

	require.Equal(t, 1, exec.buys)
	pos, ok := l.Position()
	require.True(t, ok)
	assert.Equal(t, domain.SideUp, pos.Side)
	assert.InDelta(t, 0.51, pos.EntryPrice, 1e-9)
	// tp = predicted 1.6¢ → target 0.526
	assert.InDelta(t, 0.526, pos.TargetPrice, 1e-9)
	// strictest stop: max(dynamic 0.51 − 0.96¢, percent 0.51 × 0.94)
	assert.InDelta(t, 0.5004, pos.StopPrice, 1e-9)

	// position sized by the $250 cap, not the full balance
	assert.LessOrEqual(t, pos.EntryCost, 250.0)
}

func TestLag_DownMoveFavorsDownSide(t *testing.T) {
	exec := newFakeExec(1000)
	l := newTestLag(lagTestConfig(), exec, &fakeLedger{})
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 99960, 0.50, 0.51, 0.48, 0.49)))

	require.Equal(t, 1, exec.buys)
	pos, ok := l.Position()
	require.True(t, ok)
	assert.Equal(t, domain.SideDown, pos.Side)
}

func TestLag_IdempotentWhileOpen(t *testing.T) {
	exec := newFakeExec(1000)
	l := newTestLag(lagTestConfig(), exec, &fakeLedger{})
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	require.Equal(t, 1, exec.buys)

	// mismo mundo otra vez: la posición abierta bloquea nuevas entradas
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(7*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	assert.Equal(t, 1, exec.buys)
}

func TestLag_FeedDisagreementBlocksEntry(t *testing.T) {
	exec := newFakeExec(1000)
	rec := &spyRecorder{}
	l := NewLag(lagTestConfig(), model.CalibratorConfig{}, model.LinearConfig{}, exec, &fakeLedger{}, rec)
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))

	// el mismo move que entra en TestLag_EntersOnUnansweredSpotMove, pero con
	// los feeds de spot discrepando
	w := makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)
	w.FeedsDisagree = true
	require.NoError(t, l.OnTick(ctx, w))
	assert.Equal(t, 0, exec.buys)
	assert.True(t, rec.sawSkip(SkipFeedDisagreement))

	// reconciliados, la ventana sigue viva y la entrada procede
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(7*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	assert.Equal(t, 1, exec.buys)
}

func TestLag_TargetBeyondCapRejected(t *testing.T) {
	cfg := lagTestConfig()
	cfg.PriceCap = 0.52 // el target 0.526 queda fuera de alcance
	exec := newFakeExec(1000)
	rec := &spyRecorder{}
	l := NewLag(cfg, model.CalibratorConfig{}, model.LinearConfig{}, exec, &fakeLedger{}, rec)
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))

	assert.Equal(t, 0, exec.buys)
	assert.True(t, rec.sawSkip(SkipTargetUnreachable))
}

func TestLag_RiskRewardGateRejectsEntry(t *testing.T) {
	cfg := lagTestConfig()
	cfg.MinRiskReward = 2.5 // el plan da rr ≈ 1.67
	exec := newFakeExec(1000)
	rec := &spyRecorder{}
	l := NewLag(cfg, model.CalibratorConfig{}, model.LinearConfig{}, exec, &fakeLedger{}, rec)
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))

	assert.Equal(t, 0, exec.buys)
	assert.True(t, rec.sawSkip(SkipRRTooLow))
}

func TestLag_RiskBudgetCapsSize(t *testing.T) {
	cfg := lagTestConfig()
	// pérdida en el stop ≈ 0.96¢/share → 5 shares de presupuesto de riesgo,
	// por debajo del mínimo de 10
	cfg.RiskBudgetUSD = 0.05
	cfg.MinShares = 10
	exec := newFakeExec(1000)
	rec := &spyRecorder{}
	l := NewLag(cfg, model.CalibratorConfig{}, model.LinearConfig{}, exec, &fakeLedger{}, rec)
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))

	assert.Equal(t, 0, exec.buys)
	assert.True(t, rec.sawSkip(SkipRiskCap))
}

func TestLag_TakeProfitExit(t *testing.T) {
	exec := newFakeExec(1000)
	ledger := &fakeLedger{}
	l := newTestLag(lagTestConfig(), exec, ledger)
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	require.Equal(t, 1, exec.buys)

	// the bid runs through the 0.526 target
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(7*time.Second), 100040, 0.53, 0.55, 0.45, 0.47)))

	_, ok := l.Position()
	assert.False(t, ok)
	require.Len(t, ledger.trades, 1)
	rec := ledger.trades[0]
	assert.Equal(t, "take_profit", rec.Reason)
	assert.Positive(t, rec.PnL)
	assert.Equal(t, 1, exec.sells)
}

func TestLag_StopLossAppliesLongCooldown(t *testing.T) {
	exec := newFakeExec(1000)
	ledger := &fakeLedger{}
	l := newTestLag(lagTestConfig(), exec, ledger)
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	require.Equal(t, 1, exec.buys)

	// past the grace period the bid sits through the 0.5004 stop; the wide
	// ask keeps the mid from looking like a reprice later
	exec.sellFillPx = 0.49
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(12*time.Second), 100040, 0.49, 0.52, 0.48, 0.49)))

	_, ok := l.Position()
	require.False(t, ok)
	require.Len(t, ledger.trades, 1)
	assert.Equal(t, "stop_loss", ledger.trades[0].Reason)
	assert.Negative(t, ledger.trades[0].PnL)

	// a fresh, otherwise-tradable lag inside the stop cooldown is skipped
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(13*time.Second), 100090, 0.49, 0.52, 0.48, 0.49)))
	assert.Equal(t, 1, exec.buys)
}

func TestLag_ResponseFeedsLearners(t *testing.T) {
	exec := newFakeExec(1000)
	// production config: the hurdle stays above the cold prediction, so the
	// window is pure measurement
	l := newTestLag(DefaultLagConfig(), exec, &fakeLedger{})
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	require.Equal(t, 0, exec.buys, "edge below the default hurdle")

	// two seconds later the UP mid answers with +1¢
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(8*time.Second), 100040, 0.51, 0.52, 0.47, 0.48)))

	lat := l.Latency()
	require.Equal(t, 1, lat.Count)
	assert.InDelta(t, 2000, lat.EMAms, 1)

	calState, linState := l.ModelState()
	assert.Equal(t, 1, calState.Samples)
	// observed rate: 1¢ response / $40 move
	assert.InDelta(t, 0.025, calState.EMA, 1e-9)
	assert.Equal(t, 1, linState.Samples)
}

func TestLag_StaleWindowExpires(t *testing.T) {
	exec := newFakeExec(1000)
	l := newTestLag(DefaultLagConfig(), exec, &fakeLedger{})
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))

	// 22s of silence kills the window; the reprice right after teaches nothing
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(28*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(29*time.Second), 100040, 0.51, 0.52, 0.47, 0.48)))

	calState, _ := l.ModelState()
	assert.Equal(t, 0, calState.Samples)
	assert.Equal(t, 0, l.Latency().Count)
}

func TestLag_SettlementPaysWinner(t *testing.T) {
	exec := newFakeExec(1000)
	ledger := &fakeLedger{}
	l := newTestLag(lagTestConfig(), exec, ledger)
	ctx := context.Background()

	require.NoError(t, l.OnTick(ctx, makeWorld(t0, 100000, 0.50, 0.51, 0.48, 0.49)))
	require.NoError(t, l.OnTick(ctx, makeWorld(t0.Add(6*time.Second), 100040, 0.50, 0.51, 0.48, 0.49)))
	pos, ok := l.Position()
	require.True(t, ok)

	end := makeWorld(t0.Add(15*time.Minute), 100100, 0.99, 1.0, 0.0, 0.01)
	require.NoError(t, l.OnIntervalEnd(ctx, end, domain.SideUp))

	_, ok = l.Position()
	assert.False(t, ok)
	require.Len(t, ledger.trades, 1)
	rec := ledger.trades[0]
	assert.Equal(t, "settlement", rec.Reason)
	assert.InDelta(t, float64(pos.Shares)-pos.EntryCost-0.02, rec.PnL, 1e-6)
}
