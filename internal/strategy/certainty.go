package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
	"github.com/alejandrodnm/updownbot/internal/signal"
)

const certaintyName = "certainty"

// CertaintyConfig controls the rule-based late-interval entry strategy.
type CertaintyConfig struct {
	// EntryWindow is the trailing window before resolution inside which
	// entries are allowed.
	EntryWindow time.Duration
	// Warmup is the observation time required after first seeing an interval.
	Warmup time.Duration

	// EntryMin/EntryMax is the default required best-ask band.
	EntryMin float64
	EntryMax float64
	// ReentryBuffer shapes the post-stop band: [stopExit−buf, stopExit+buf].
	ReentryBuffer float64
	MaxSpread     float64

	// TakeProfitMin/TakeProfitMax is the bid zone that triggers the TP exit.
	TakeProfitMin float64
	TakeProfitMax float64
	// StopPrice triggers the SL exit at or below it; StopBuffer is how deep
	// into the bid ladder the exit may fill below StopPrice.
	StopPrice  float64
	StopBuffer float64

	ConfirmTicks     int
	ExitConfirmTicks int
	Cooldown         time.Duration

	MinShares int
	GasUSD    float64
}

// DefaultCertaintyConfig returns the production defaults.
func DefaultCertaintyConfig() CertaintyConfig {
	return CertaintyConfig{
		EntryWindow:      10 * time.Minute,
		Warmup:           60 * time.Second,
		EntryMin:         0.80,
		EntryMax:         0.82,
		ReentryBuffer:    0.02,
		MaxSpread:        0.03,
		TakeProfitMin:    0.94,
		TakeProfitMax:    0.995,
		StopPrice:        0.75,
		StopBuffer:       0.05,
		ConfirmTicks:     2,
		ExitConfirmTicks: 2,
		Cooldown:         20 * time.Second,
		MinShares:        5,
		GasUSD:           0.02,
	}
}

// Certainty buys the leading side late in the interval, once its price shows
// the market converging on an outcome, and rides it toward $1 with a hard
// stop. States: idle ⇄ open, with sub-state scoped to the current interval.
type Certainty struct {
	cfg    CertaintyConfig
	exec   ports.OrderExecutor
	ledger ports.TradeStorage
	rec    Recorder

	// Interval-scoped sub-state, reset on rollover.
	intervalID string
	firstSeen  time.Time
	candles    map[domain.Side]*signal.CandleTracker
	stopExit   float64 // realized stop-loss exit price; 0 → default band
	confirm    confirmCounter
	exitConf   confirmCounter
	cooldownTo time.Time

	pos       *domain.OpenPosition
	entryFee  float64
	capBefore float64
}

// NewCertainty creates the strategy with injected dependencies.
func NewCertainty(cfg CertaintyConfig, exec ports.OrderExecutor, ledger ports.TradeStorage, rec Recorder) *Certainty {
	if cfg.EntryMax <= cfg.EntryMin {
		cfg = DefaultCertaintyConfig()
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Certainty{
		cfg:     cfg,
		exec:    exec,
		ledger:  ledger,
		rec:     rec,
		candles: newCandleSet(),
	}
}

func newCandleSet() map[domain.Side]*signal.CandleTracker {
	return map[domain.Side]*signal.CandleTracker{
		domain.SideUp:   signal.NewCandleTracker(signal.DefaultMaxArchive),
		domain.SideDown: signal.NewCandleTracker(signal.DefaultMaxArchive),
	}
}

func (c *Certainty) Name() string { return certaintyName }

// Position devuelve la posición abierta, si existe.
func (c *Certainty) Position() (domain.OpenPosition, bool) {
	if c.pos == nil {
		return domain.OpenPosition{}, false
	}
	return *c.pos, true
}

// RequiredBand returns the ask band an entry must currently fall into:
// the default band, or the re-entry band around the last stop-loss exit.
// A stop band is cleared only by a successful re-entry.
func (c *Certainty) RequiredBand() (lo, hi float64) {
	if c.stopExit > 0 {
		return c.stopExit - c.cfg.ReentryBuffer, c.stopExit + c.cfg.ReentryBuffer
	}
	return c.cfg.EntryMin, c.cfg.EntryMax
}

// OnTick records candles, rolls interval sub-state, then checks exits before
// considering an entry.
func (c *Certainty) OnTick(ctx context.Context, w domain.WorldState) error {
	now := w.ObservedAt

	if w.ConditionID != c.intervalID {
		c.rollInterval(w, now)
	}
	for _, side := range []domain.Side{domain.SideUp, domain.SideDown} {
		if ask := w.Outcome(side).Book.BestAsk(); ask > 0 {
			c.candles[side].Record(ask, now)
		}
	}

	if c.pos != nil {
		return c.checkExit(ctx, w, now)
	}
	return c.checkEntry(ctx, w, now)
}

// rollInterval resets the interval-scoped sub-state for a fresh market.
// A position left over from the previous interval is kept but frozen: its
// staleness is detected by the exit path and surfaced to the operator.
func (c *Certainty) rollInterval(w domain.WorldState, now time.Time) {
	c.intervalID = w.ConditionID
	c.firstSeen = now
	c.candles = newCandleSet()
	c.stopExit = 0
	c.confirm.reset()
	c.exitConf.reset()
	c.cooldownTo = time.Time{}
	slog.Debug("certainty: interval rolled", "condition", w.ConditionID, "ends", w.IntervalEnd)
}

func (c *Certainty) checkEntry(ctx context.Context, w domain.WorldState, now time.Time) error {
	if w.FeedsDisagree {
		c.rec.Skip(certaintyName, SkipFeedDisagreement)
		return nil
	}
	if now.Sub(c.firstSeen) < c.cfg.Warmup {
		c.rec.Skip(certaintyName, SkipWarmup)
		return nil
	}
	if w.SecondsToEnd() > c.cfg.EntryWindow.Seconds() || w.SecondsToEnd() == 0 {
		c.rec.Skip(certaintyName, SkipOutsideWindow)
		return nil
	}
	if now.Before(c.cooldownTo) {
		c.rec.Skip(certaintyName, SkipCooldown)
		return nil
	}

	side, reason := c.pickSide(w)
	if reason != "" {
		c.rec.Skip(certaintyName, reason)
		return nil
	}
	quote := w.Outcome(side)
	ask := quote.Book.BestAsk()

	balance, err := c.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("certainty.checkEntry: balance: %w", err)
	}

	shares, err := domain.MaxSharesForBudget(quote.Book.Asks, quote.FeeBps, balance, c.cfg.MinShares)
	if err != nil {
		switch err {
		case domain.ErrBudgetTooSmall:
			c.rec.Skip(certaintyName, SkipBudgetTooSmall)
		default:
			c.rec.Skip(certaintyName, SkipInsufficientDepth)
		}
		return nil
	}
	fill, err := domain.CostToBuy(quote.Book.Asks, shares, quote.FeeBps)
	if err != nil {
		c.rec.Skip(certaintyName, SkipInsufficientDepth)
		return nil
	}

	key := fmt.Sprintf("%s@%.2f", side, ask)
	if c.confirm.bump(key) < c.cfg.ConfirmTicks {
		c.rec.Skip(certaintyName, SkipConfirming)
		return nil
	}

	got, err := c.exec.BuyFOK(ctx, quote.TokenID, shares, fill.WorstPrice)
	if err != nil {
		slog.Warn("certainty: entry order rejected", "side", side, "shares", shares, "err", err)
		c.rec.Skip(certaintyName, SkipOrderRejected)
		return nil
	}

	c.capBefore = balance
	c.entryFee = got.Fee
	c.pos = &domain.OpenPosition{
		ID:          uuid.New().String(),
		Strategy:    certaintyName,
		Side:        side,
		Shares:      got.Shares,
		EntryPrice:  got.AvgPrice,
		EntryCost:   got.Total,
		StopPrice:   c.cfg.StopPrice,
		TargetPrice: c.cfg.TakeProfitMin,
		OpenedAt:    now,
		SettlesAt:   w.IntervalEnd,
		ConditionID: w.ConditionID,
		TokenID:     quote.TokenID,
	}
	// A successful re-entry clears the post-stop band.
	c.stopExit = 0
	c.confirm.reset()
	c.exitConf.reset()
	c.rec.Entry(*c.pos)
	slog.Info("certainty: position opened",
		"side", side, "shares", got.Shares, "entry", got.AvgPrice)
	return nil
}

// pickSide finds the side whose best ask sits inside the required band with
// bullish one-minute momentum and an acceptable spread. After a stop-loss the
// band follows the realized exit, and either side may qualify.
func (c *Certainty) pickSide(w domain.WorldState) (domain.Side, string) {
	lo, hi := c.RequiredBand()

	sawQuote := false
	reason := ""
	for _, side := range []domain.Side{domain.SideUp, domain.SideDown} {
		quote := w.Outcome(side)
		ask := quote.Book.BestAsk()
		if ask <= 0 || quote.Book.BestBid() <= 0 {
			continue
		}
		sawQuote = true
		// Un lado descalificado no cierra el tick: el otro puede calificar,
		// sobre todo con la banda post-stop, que admite cualquiera de los dos.
		if !quote.FeeKnown {
			if reason == "" {
				reason = SkipUnknownFee
			}
			continue
		}
		if ask < lo || ask > hi {
			continue
		}
		if quote.Book.Spread() > c.cfg.MaxSpread {
			if reason == "" {
				reason = SkipSpreadTooWide
			}
			continue
		}
		if !c.candles[side].IsBullish() {
			if reason == "" {
				reason = SkipNotBullish
			}
			continue
		}
		return side, ""
	}
	if !sawQuote {
		return "", SkipNoQuotes
	}
	if reason != "" {
		return "", reason
	}
	return "", SkipBandMiss
}

// checkExit runs take-profit before stop-loss, each gated by confirmation
// ticks and the shared cooldown.
func (c *Certainty) checkExit(ctx context.Context, w domain.WorldState, now time.Time) error {
	pos := c.pos
	quote := w.Outcome(pos.Side)

	if pos.IsStale(w.ConditionID, quote.TokenID) {
		slog.Warn("certainty: open position does not match current interval, freezing exits",
			"position_condition", pos.ConditionID,
			"world_condition", w.ConditionID,
		)
		c.rec.Skip(certaintyName, SkipStaleInterval)
		return nil
	}
	if now.Before(c.cooldownTo) {
		c.rec.Skip(certaintyName, SkipCooldown)
		return nil
	}

	bid := quote.Book.BestBid()
	if bid <= 0 {
		c.rec.Skip(certaintyName, SkipNoQuotes)
		return nil
	}

	// TP: the bid entered the profit zone.
	if bid >= c.cfg.TakeProfitMin && bid <= c.cfg.TakeProfitMax {
		if c.exitConf.bump("tp") >= c.cfg.ExitConfirmTicks {
			return c.close(ctx, w, now, c.cfg.TakeProfitMin, "take_profit", false)
		}
		return nil
	}

	// SL: at or below the fixed stop, fill wherever the ladder allows within
	// the buffer instead of demanding an exact level.
	if bid <= c.cfg.StopPrice {
		minPx := c.cfg.StopPrice - c.cfg.StopBuffer
		if _, err := domain.ProceedsFromSell(quote.Book.Bids, pos.Shares, quote.FeeBps, minPx); err != nil {
			c.rec.Skip(certaintyName, SkipInsufficientDepth)
			return nil
		}
		if c.exitConf.bump("sl") >= c.cfg.ExitConfirmTicks {
			return c.close(ctx, w, now, minPx, "stop_loss", true)
		}
		return nil
	}

	c.exitConf.reset()
	return nil
}

func (c *Certainty) close(ctx context.Context, w domain.WorldState, now time.Time, limit float64, reason string, stopped bool) error {
	pos := c.pos
	fill, err := c.exec.SellFOK(ctx, pos.TokenID, pos.Shares, limit)
	if err != nil {
		slog.Warn("certainty: exit order rejected", "reason", reason, "err", err)
		c.rec.Skip(certaintyName, SkipOrderRejected)
		return nil
	}

	capAfter, err := c.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("certainty.close: balance: %w", err)
	}

	pnl := fill.Total - pos.EntryCost - c.cfg.GasUSD
	rec := domain.TradeRecord{
		ID:            uuid.New().String(),
		Strategy:      certaintyName,
		ConditionID:   pos.ConditionID,
		Side:          pos.Side,
		Shares:        pos.Shares,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     fill.AvgPrice,
		EntryFee:      c.entryFee,
		ExitFee:       fill.Fee,
		GasUSD:        c.cfg.GasUSD,
		CapitalBefore: c.capBefore,
		CapitalAfter:  capAfter,
		PnL:           pnl,
		ROI:           pnl / pos.EntryCost,
		Reason:        reason,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      now,
	}
	if err := c.ledger.AppendTrade(ctx, rec); err != nil {
		slog.Warn("certainty: ledger append failed", "err", err)
	}
	c.rec.Exit(rec)

	if stopped {
		// The next entry must happen near where this one died.
		c.stopExit = fill.AvgPrice
	}
	c.cooldownTo = now.Add(c.cfg.Cooldown)
	c.pos = nil
	c.exitConf.reset()
	slog.Info("certainty: position closed", "reason", reason, "pnl", pnl, "exit", fill.AvgPrice)
	return nil
}

// OnIntervalEnd settles a position still open at resolution.
func (c *Certainty) OnIntervalEnd(ctx context.Context, w domain.WorldState, winner domain.Side) error {
	if c.pos == nil {
		return nil
	}
	pos := c.pos
	payout := 0.0
	if pos.Side == winner {
		payout = 1.0
	}
	proceeds, err := c.exec.Redeem(ctx, pos.TokenID, pos.Shares, payout)
	if err != nil {
		return fmt.Errorf("certainty.OnIntervalEnd: redeem: %w", err)
	}
	capAfter, err := c.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("certainty.OnIntervalEnd: balance: %w", err)
	}

	pnl := proceeds - pos.EntryCost - c.cfg.GasUSD
	rec := domain.TradeRecord{
		ID:            uuid.New().String(),
		Strategy:      certaintyName,
		ConditionID:   pos.ConditionID,
		Side:          pos.Side,
		Shares:        pos.Shares,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     payout,
		EntryFee:      c.entryFee,
		GasUSD:        c.cfg.GasUSD,
		CapitalBefore: c.capBefore,
		CapitalAfter:  capAfter,
		PnL:           pnl,
		ROI:           pnl / pos.EntryCost,
		Reason:        "settlement",
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      w.ObservedAt,
	}
	if err := c.ledger.AppendTrade(ctx, rec); err != nil {
		slog.Warn("certainty: ledger append failed", "err", err)
	}
	c.rec.Exit(rec)
	c.pos = nil
	return nil
}
