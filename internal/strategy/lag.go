package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/model"
	"github.com/alejandrodnm/updownbot/internal/ports"
	"github.com/alejandrodnm/updownbot/internal/signal"
)

const lagName = "lag"

// LagConfig controls lag detection, edge estimation and risk sizing.
type LagConfig struct {
	FastWindow     time.Duration
	SlowWindow     time.Duration
	BaselineWindow time.Duration

	// MoveThresholdUSD is the minimum spot move on the fast window to open a
	// lag window.
	MoveThresholdUSD float64
	// ResponseThresholdCents is the market move below which both outcome mids
	// count as "unresponded".
	ResponseThresholdCents float64
	// WindowMaxAge discards a lag window nobody answered.
	WindowMaxAge time.Duration

	// Edge components, all in cents per share.
	MinEdgeCents         float64
	PressurePenaltyCents float64
	DisagreePenaltyCents float64
	FlowPenaltyCents     float64
	FlowBonusCents       float64

	// Take-profit / stop-loss shaping.
	MinTPCents   float64
	MaxTPCents   float64
	StopFraction float64 // SL target as fraction of TP target
	MinSLCents   float64
	MaxSLCents   float64
	StopPercent  float64 // percent-stop: entry × (1 − StopPercent)
	StopMode     string  // percent | dynamic | strictest

	RiskBudgetUSD  float64 // max tolerated loss per trade at the stop
	MaxPositionUSD float64
	MinRiskReward  float64
	PriceCap       float64 // reject if the target is beyond this price

	ConfirmTicks     int
	ExitConfirmTicks int
	ExitGrace        time.Duration
	Cooldown         time.Duration
	StopCooldown     time.Duration

	MinShares int
	GasUSD    float64
}

// DefaultLagConfig returns the production defaults.
func DefaultLagConfig() LagConfig {
	return LagConfig{
		FastWindow:             5 * time.Second,
		SlowWindow:             30 * time.Second,
		BaselineWindow:         signal.DefaultHorizon,
		MoveThresholdUSD:       25,
		ResponseThresholdCents: 0.4,
		WindowMaxAge:           20 * time.Second,
		MinEdgeCents:           0.8,
		PressurePenaltyCents:   0.5,
		DisagreePenaltyCents:   0.5,
		FlowPenaltyCents:       0.5,
		FlowBonusCents:         0.3,
		MinTPCents:             1.0,
		MaxTPCents:             6.0,
		StopFraction:           0.6,
		MinSLCents:             0.5,
		MaxSLCents:             3.0,
		StopPercent:            0.06,
		StopMode:               "strictest",
		RiskBudgetUSD:          10,
		MaxPositionUSD:         250,
		MinRiskReward:          1.5,
		PriceCap:               0.99,
		ConfirmTicks:           2,
		ExitConfirmTicks:       2,
		ExitGrace:              5 * time.Second,
		Cooldown:               30 * time.Second,
		StopCooldown:           2 * time.Minute,
		MinShares:              5,
		GasUSD:                 0.02,
	}
}

// LatencyStats tracks how long the market takes to reprice after a spot move.
type LatencyStats struct {
	EMAms  float64
	LastMs float64
	MaxMs  float64
	Count  int
}

func (ls *LatencyStats) record(d time.Duration) {
	ms := float64(d.Milliseconds())
	if ls.Count == 0 {
		ls.EMAms = ms
	} else {
		ls.EMAms = ls.EMAms*0.8 + ms*0.2
	}
	ls.LastMs = ms
	if ms > ls.MaxMs {
		ls.MaxMs = ms
	}
	ls.Count++
}

// lagWindow is an open, so-far-unanswered spot move being tracked for latency
// measurement and entry evaluation.
type lagWindow struct {
	Side       domain.Side // favored outcome of the move
	StartedAt  time.Time
	SpotStart  float64
	MidStart   float64 // favored-side mid when the window opened
	Magnitude  float64 // |spot move| in dollars, kept up to date
	Features   model.Features
	HasFeature bool
}

// Lag trades the delay between an underlying move and the market repricing it.
// States: idle ⇄ pending-confirm ⇄ open ⇄ idle.
type Lag struct {
	cfg    LagConfig
	exec   ports.OrderExecutor
	ledger ports.TradeStorage
	rec    Recorder

	history  *signal.History
	upMid    *signal.History
	downMid  *signal.History
	upFlow   *signal.FlowTracker
	downFlow *signal.FlowTracker
	calib    *model.Calibrator
	lmodel   *model.LinearModel

	window        *lagWindow
	latency       LatencyStats
	confirm       confirmCounter
	exitConfirm   confirmCounter
	cooldownUntil time.Time

	pos       *domain.OpenPosition
	entryFee  float64
	capBefore float64
}

// NewLag creates the lag strategy with injected dependencies. Calibrator and
// model state start cold every run; nothing is persisted across restarts.
func NewLag(cfg LagConfig, calCfg model.CalibratorConfig, linCfg model.LinearConfig,
	exec ports.OrderExecutor, ledger ports.TradeStorage, rec Recorder) *Lag {

	def := DefaultLagConfig()
	if cfg.FastWindow <= 0 {
		cfg = def
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Lag{
		cfg:      cfg,
		exec:     exec,
		ledger:   ledger,
		rec:      rec,
		history:  signal.NewHistory(cfg.BaselineWindow),
		upMid:    signal.NewHistory(cfg.BaselineWindow),
		downMid:  signal.NewHistory(cfg.BaselineWindow),
		upFlow:   signal.NewFlowTracker(0, 0),
		downFlow: signal.NewFlowTracker(0, 0),
		calib:    model.NewCalibrator(calCfg),
		lmodel:   model.NewLinearModel(linCfg),
	}
}

func (l *Lag) Name() string { return lagName }

// Position devuelve la posición abierta, si existe.
func (l *Lag) Position() (domain.OpenPosition, bool) {
	if l.pos == nil {
		return domain.OpenPosition{}, false
	}
	return *l.pos, true
}

// Latency returns the observed repricing latency statistics.
func (l *Lag) Latency() LatencyStats { return l.latency }

// ModelState exposes the online model state for observability.
func (l *Lag) ModelState() (model.CalibratorState, model.LinearState) {
	return l.calib.State(), l.lmodel.State()
}

// OnTick runs one evaluation cycle: observe, settle the open lag window,
// check exits, then consider a new entry.
func (l *Lag) OnTick(ctx context.Context, w domain.WorldState) error {
	now := w.ObservedAt
	l.observe(w)

	l.updateWindow(w, now)

	if l.pos != nil {
		return l.checkExit(ctx, w, now)
	}
	return l.checkEntry(ctx, w, now)
}

// observe folds the snapshot into the rolling trackers.
func (l *Lag) observe(w domain.WorldState) {
	if w.Spot.Price > 0 {
		l.history.Record(w.Spot.Price, w.Spot.At)
	}
	if mid := w.Up.Book.Midpoint(); mid > 0 {
		l.upMid.Record(mid, w.ObservedAt)
	}
	if mid := w.Down.Book.Midpoint(); mid > 0 {
		l.downMid.Record(mid, w.ObservedAt)
	}
	for _, tr := range w.Up.Trades {
		l.upFlow.RecordTrade(tr.At, tr.Price, tr.Size, tr.TakerBuy)
	}
	for _, tr := range w.Down.Trades {
		l.downFlow.RecordTrade(tr.At, tr.Price, tr.Size, tr.TakerBuy)
	}
}

// updateWindow opens, feeds, answers or expires the lag window.
func (l *Lag) updateWindow(w domain.WorldState, now time.Time) {
	if l.window != nil {
		win := l.window
		mid := w.Outcome(win.Side).Book.Midpoint()
		if mid > 0 {
			responseCents := (mid - win.MidStart) * 100
			if responseCents >= l.cfg.ResponseThresholdCents {
				// The market answered: record latency and feed the learners.
				elapsed := now.Sub(win.StartedAt)
				l.latency.record(elapsed)
				l.calib.Observe(responseCents, win.Magnitude)
				if win.HasFeature {
					l.lmodel.Update(win.Features, responseCents)
				}
				slog.Debug("lag: response observed",
					"side", win.Side,
					"latency_ms", elapsed.Milliseconds(),
					"response_cents", responseCents,
					"spot_move", win.Magnitude,
				)
				l.window = nil
				return
			}
		}
		if now.Sub(win.StartedAt) > l.cfg.WindowMaxAge {
			l.window = nil
			return
		}
		// Keep the magnitude current while the move extends.
		if w.Spot.Price > 0 {
			mag := math.Abs(w.Spot.Price - win.SpotStart)
			if mag > win.Magnitude {
				win.Magnitude = mag
			}
		}
		return
	}

	// No window open: look for a fresh lag.
	delta, ok := l.history.DeltaOverWindow(l.cfg.FastWindow, now)
	if !ok || math.Abs(delta) < l.cfg.MoveThresholdUSD {
		return
	}
	side := domain.SideUp
	if delta < 0 {
		side = domain.SideDown
	}

	// Both mids must still be flat over the same window for this to count
	// as a lag: if either already repriced, the move was not missed.
	if upMove, ok := l.upMid.DeltaOverWindow(l.cfg.FastWindow, now); ok &&
		math.Abs(upMove)*100 >= l.cfg.ResponseThresholdCents {
		return
	}
	if downMove, ok := l.downMid.DeltaOverWindow(l.cfg.FastWindow, now); ok &&
		math.Abs(downMove)*100 >= l.cfg.ResponseThresholdCents {
		return
	}

	mid := w.Outcome(side).Book.Midpoint()
	if mid <= 0 {
		return
	}
	win := &lagWindow{
		Side:      side,
		StartedAt: now,
		SpotStart: w.Spot.Price - delta,
		MidStart:  mid,
		Magnitude: math.Abs(delta),
	}
	win.Features, win.HasFeature = l.buildFeatures(w, side, now)
	l.window = win
	slog.Debug("lag: window opened", "side", side, "spot_move", win.Magnitude, "mid", mid)
}

// buildFeatures assembles the model input vector, normalized to roughly [-1, 1].
func (l *Lag) buildFeatures(w domain.WorldState, side domain.Side, now time.Time) (model.Features, bool) {
	var f model.Features

	norm := l.cfg.MoveThresholdUSD * 4
	if d, ok := l.history.DeltaOverWindow(l.cfg.FastWindow, now); ok {
		f[model.FeatFastDelta] = clampAbs(d/norm, 1)
	}
	if d, ok := l.history.DeltaOverWindow(l.cfg.SlowWindow, now); ok {
		f[model.FeatSlowDelta] = clampAbs(d/norm, 1)
	}
	if d, ok := l.history.DeltaOverWindow(l.cfg.BaselineWindow, now); ok {
		f[model.FeatBaseDelta] = clampAbs(d/norm, 1)
	}

	book := w.Outcome(side).Book
	if book.BestAsk() == 0 {
		return f, false
	}
	f[model.FeatSpread] = clampAbs(book.Spread()*20, 1) // 5 cents of spread → 1.0
	f[model.FeatImbalance] = book.Imbalance(5)
	f[model.FeatMicroPressure] = clampAbs(book.MicropricePressure()*100, 1)

	flow := l.upFlow
	if side == domain.SideDown {
		flow = l.downFlow
	}
	if stats, ok := flow.Stats(now); ok {
		f[model.FeatFlowRatio] = clampAbs(stats.VolumeRatio/4, 1)
		f[model.FeatFlowImbalance] = stats.Imbalance
		f[model.FeatFlowPriceDelta] = clampAbs(stats.PriceDelta*20, 1)
	}
	return f, true
}

// checkEntry evaluates the open lag window against the required edge and,
// if admitted and confirmed, opens the position.
func (l *Lag) checkEntry(ctx context.Context, w domain.WorldState, now time.Time) error {
	if l.window == nil {
		return nil
	}
	if w.FeedsDisagree {
		l.rec.Skip(lagName, SkipFeedDisagreement)
		return nil
	}
	if now.Before(l.cooldownUntil) {
		l.rec.Skip(lagName, SkipCooldown)
		return nil
	}

	win := l.window
	quote := w.Outcome(win.Side)
	if !quote.FeeKnown {
		l.rec.Skip(lagName, SkipUnknownFee)
		return nil
	}
	ask := quote.Book.BestAsk()
	if ask <= 0 || quote.Book.BestBid() <= 0 {
		l.rec.Skip(lagName, SkipNoQuotes)
		return nil
	}

	// Predicted repricing: calibrated heuristic blended with the model.
	heuristic := win.Magnitude * l.calib.Rate()
	predicted := heuristic
	if win.HasFeature {
		predicted = l.lmodel.Blend(heuristic, win.Features)
	}

	required := l.requiredEdgeCents(w, win, now, ask)
	if predicted < required {
		l.rec.Skip(lagName, SkipEdgeTooSmall)
		return nil
	}

	plan, reason := l.sizeEntry(ctx, w, win, ask, predicted)
	if reason != "" {
		l.rec.Skip(lagName, reason)
		return nil
	}

	key := fmt.Sprintf("%s@%.2f", win.Side, ask)
	if l.confirm.bump(key) < l.cfg.ConfirmTicks {
		l.rec.Skip(lagName, SkipConfirming)
		return nil
	}

	fill, err := l.exec.BuyFOK(ctx, quote.TokenID, plan.shares, plan.limit)
	if err != nil {
		slog.Warn("lag: entry order rejected", "side", win.Side, "shares", plan.shares, "err", err)
		l.rec.Skip(lagName, SkipOrderRejected)
		return nil
	}

	l.capBefore = plan.balance
	l.entryFee = fill.Fee
	l.pos = &domain.OpenPosition{
		ID:          uuid.New().String(),
		Strategy:    lagName,
		Side:        win.Side,
		Shares:      fill.Shares,
		EntryPrice:  fill.AvgPrice,
		EntryCost:   fill.Total,
		StopPrice:   plan.stop,
		TargetPrice: plan.target,
		OpenedAt:    now,
		SettlesAt:   w.IntervalEnd,
		ConditionID: w.ConditionID,
		TokenID:     quote.TokenID,
	}
	l.window = nil
	l.confirm.reset()
	l.exitConfirm.reset()
	l.rec.Entry(*l.pos)
	slog.Info("lag: position opened",
		"side", l.pos.Side,
		"shares", l.pos.Shares,
		"entry", l.pos.EntryPrice,
		"target", l.pos.TargetPrice,
		"stop", l.pos.StopPrice,
	)
	return nil
}

// requiredEdgeCents is the hurdle the predicted repricing must clear:
// fee breakeven + current spread + a constant floor + conditional penalties,
// minus a bonus when taker flow already pushes the same way.
func (l *Lag) requiredEdgeCents(w domain.WorldState, win *lagWindow, now time.Time, ask float64) float64 {
	quote := w.Outcome(win.Side)
	book := quote.Book

	edge := domain.RoundTripFeeCents(ask, ask, quote.FeeBps)
	edge += book.Spread() * 100
	edge += l.cfg.MinEdgeCents

	// Book pressure should back the move; weak or contrary pressure costs.
	pressure := book.Imbalance(5)
	if pressure < 0.1 {
		edge += l.cfg.PressurePenaltyCents
	}

	// Fast and slow spot windows disagreeing on direction is a warning sign.
	fast, fok := l.history.DeltaOverWindow(l.cfg.FastWindow, now)
	slow, sok := l.history.DeltaOverWindow(l.cfg.SlowWindow, now)
	if fok && sok && fast*slow < 0 {
		edge += l.cfg.DisagreePenaltyCents
	}

	flow := l.upFlow
	if win.Side == domain.SideDown {
		flow = l.downFlow
	}
	if stats, ok := flow.Stats(now); ok {
		aligned := stats.Imbalance > 0.1
		switch {
		case aligned && stats.VolumeRatio > 1:
			edge -= l.cfg.FlowBonusCents
		case stats.Imbalance < -0.1:
			edge += l.cfg.FlowPenaltyCents
		}
	}
	return edge
}

type entryPlan struct {
	shares  int
	limit   float64
	target  float64
	stop    float64
	balance float64
}

// sizeEntry turns an admitted edge into shares, target and stop. Returns a
// skip reason instead of a plan when any risk gate blocks the trade.
func (l *Lag) sizeEntry(ctx context.Context, w domain.WorldState, win *lagWindow, ask, predicted float64) (entryPlan, string) {
	quote := w.Outcome(win.Side)

	// Take-profit net of the move the market already made.
	realized := (quote.Book.Midpoint() - win.MidStart) * 100
	tpCents := predicted - realized
	if tpCents < l.cfg.MinTPCents {
		return entryPlan{}, SkipEdgeTooSmall
	}
	if tpCents > l.cfg.MaxTPCents {
		tpCents = l.cfg.MaxTPCents
	}
	target := ask + tpCents/100
	if target > l.cfg.PriceCap {
		// Even a run to the cap cannot pay for the trade.
		return entryPlan{}, SkipTargetUnreachable
	}

	slCents := tpCents * l.cfg.StopFraction
	if slCents < l.cfg.MinSLCents {
		slCents = l.cfg.MinSLCents
	}
	if slCents > l.cfg.MaxSLCents {
		slCents = l.cfg.MaxSLCents
	}
	dynamicStop := ask - slCents/100
	percentStop := ask * (1 - l.cfg.StopPercent)

	var stop float64
	switch l.cfg.StopMode {
	case "percent":
		stop = percentStop
	case "dynamic":
		stop = dynamicStop
	default: // strictest: the stop closest to entry loses the least
		stop = math.Max(dynamicStop, percentStop)
	}

	rr := (target - ask) / (ask - stop)
	if rr < l.cfg.MinRiskReward {
		return entryPlan{}, SkipRRTooLow
	}

	balance, err := l.exec.Balance(ctx)
	if err != nil {
		slog.Warn("lag: balance query failed", "err", err)
		return entryPlan{}, SkipBudgetTooSmall
	}
	budget := balance
	if l.cfg.MaxPositionUSD > 0 && l.cfg.MaxPositionUSD < budget {
		budget = l.cfg.MaxPositionUSD
	}

	bookShares, err := domain.MaxSharesForBudget(quote.Book.Asks, quote.FeeBps, budget, l.cfg.MinShares)
	if err != nil {
		switch {
		case err == domain.ErrBudgetTooSmall:
			return entryPlan{}, SkipBudgetTooSmall
		default:
			return entryPlan{}, SkipInsufficientDepth
		}
	}

	// Worst-case loss per share at the stop, fees included both ways.
	lossPerShare := (ask - stop) + ask*domain.FeeFraction(quote.FeeBps) + stop*domain.FeeFraction(quote.FeeBps)
	riskShares := int(l.cfg.RiskBudgetUSD / lossPerShare)
	if riskShares < l.cfg.MinShares {
		return entryPlan{}, SkipRiskCap
	}

	shares := bookShares
	if riskShares < shares {
		shares = riskShares
	}

	fill, err := domain.CostToBuy(quote.Book.Asks, shares, quote.FeeBps)
	if err != nil {
		return entryPlan{}, SkipInsufficientDepth
	}
	return entryPlan{
		shares:  shares,
		limit:   fill.WorstPrice,
		target:  target,
		stop:    stop,
		balance: balance,
	}, ""
}

// checkExit runs take-profit before stop-loss. The stop only arms after a
// grace period and both exits need consecutive confirming ticks.
func (l *Lag) checkExit(ctx context.Context, w domain.WorldState, now time.Time) error {
	pos := l.pos
	quote := w.Outcome(pos.Side)

	if pos.IsStale(w.ConditionID, quote.TokenID) {
		slog.Warn("lag: open position does not match current interval, freezing exits",
			"position_condition", pos.ConditionID,
			"world_condition", w.ConditionID,
		)
		l.rec.Skip(lagName, SkipStaleInterval)
		return nil
	}

	bid := quote.Book.BestBid()
	if bid <= 0 {
		l.rec.Skip(lagName, SkipNoQuotes)
		return nil
	}

	if bid >= pos.TargetPrice {
		if l.exitConfirm.bump("tp") >= l.cfg.ExitConfirmTicks {
			return l.close(ctx, w, now, pos.TargetPrice, "take_profit", false)
		}
		return nil
	}

	mark := math.Min(bid, quote.Book.Midpoint())
	stopHit := mark <= pos.StopPrice && now.Sub(pos.OpenedAt) >= l.cfg.ExitGrace
	if stopHit {
		if l.exitConfirm.bump("sl") >= l.cfg.ExitConfirmTicks {
			return l.close(ctx, w, now, 0, "stop_loss", true)
		}
		return nil
	}

	l.exitConfirm.reset()
	return nil
}

// close sells the position FOK, appends the ledger record and applies the
// post-exit cooldown (longer after a stop-out).
func (l *Lag) close(ctx context.Context, w domain.WorldState, now time.Time, limit float64, reason string, stopped bool) error {
	pos := l.pos
	fill, err := l.exec.SellFOK(ctx, pos.TokenID, pos.Shares, limit)
	if err != nil {
		slog.Warn("lag: exit order rejected", "reason", reason, "err", err)
		l.rec.Skip(lagName, SkipOrderRejected)
		return nil
	}

	capAfter, err := l.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("lag.close: balance: %w", err)
	}

	pnl := fill.Total - pos.EntryCost - l.cfg.GasUSD
	rec := domain.TradeRecord{
		ID:            uuid.New().String(),
		Strategy:      lagName,
		ConditionID:   pos.ConditionID,
		Side:          pos.Side,
		Shares:        pos.Shares,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     fill.AvgPrice,
		EntryFee:      l.entryFee,
		ExitFee:       fill.Fee,
		GasUSD:        l.cfg.GasUSD,
		CapitalBefore: l.capBefore,
		CapitalAfter:  capAfter,
		PnL:           pnl,
		ROI:           pnl / pos.EntryCost,
		Reason:        reason,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      now,
	}
	if err := l.ledger.AppendTrade(ctx, rec); err != nil {
		slog.Warn("lag: ledger append failed", "err", err)
	}
	l.rec.Exit(rec)

	cooldown := l.cfg.Cooldown
	if stopped {
		cooldown = l.cfg.StopCooldown
	}
	l.cooldownUntil = now.Add(cooldown)
	l.pos = nil
	l.exitConfirm.reset()
	slog.Info("lag: position closed", "reason", reason, "pnl", pnl, "roi", rec.ROI)
	return nil
}

// OnIntervalEnd settles a position still open at resolution: $1 per share if
// the held side won, $0 otherwise.
func (l *Lag) OnIntervalEnd(ctx context.Context, w domain.WorldState, winner domain.Side) error {
	if l.pos == nil {
		return nil
	}
	pos := l.pos
	payout := 0.0
	if pos.Side == winner {
		payout = 1.0
	}
	proceeds, err := l.exec.Redeem(ctx, pos.TokenID, pos.Shares, payout)
	if err != nil {
		return fmt.Errorf("lag.OnIntervalEnd: redeem: %w", err)
	}
	capAfter, err := l.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("lag.OnIntervalEnd: balance: %w", err)
	}

	pnl := proceeds - pos.EntryCost - l.cfg.GasUSD
	rec := domain.TradeRecord{
		ID:            uuid.New().String(),
		Strategy:      lagName,
		ConditionID:   pos.ConditionID,
		Side:          pos.Side,
		Shares:        pos.Shares,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     payout,
		EntryFee:      l.entryFee,
		GasUSD:        l.cfg.GasUSD,
		CapitalBefore: l.capBefore,
		CapitalAfter:  capAfter,
		PnL:           pnl,
		ROI:           pnl / pos.EntryCost,
		Reason:        "settlement",
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      w.ObservedAt,
	}
	if err := l.ledger.AppendTrade(ctx, rec); err != nil {
		slog.Warn("lag: ledger append failed", "err", err)
	}
	l.rec.Exit(rec)
	l.pos = nil
	l.window = nil
	l.confirm.reset()
	l.exitConfirm.reset()
	return nil
}

func clampAbs(v, maxAbs float64) float64 {
	if v > maxAbs {
		return maxAbs
	}
	if v < -maxAbs {
		return -maxAbs
	}
	return v
}
