package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

const arbitrageName = "arbitrage"

// ArbitrageConfig controla la estrategia de arbitraje sintético.
type ArbitrageConfig struct {
	// BudgetUSDC es el capital máximo por straddle. 0 → todo el balance.
	BudgetUSDC float64
	// MinProfitCents es el beneficio mínimo por share (1 − suma de costes).
	MinProfitCents float64
	MinShares      int
	GasUSD         float64
}

// DefaultArbitrageConfig devuelve los defaults de producción.
func DefaultArbitrageConfig() ArbitrageConfig {
	return ArbitrageConfig{
		MinProfitCents: 1.0,
		MinShares:      5,
		GasUSD:         0.02,
	}
}

// straddle es la posición simultánea en ambos tokens, mantenida hasta la
// resolución del intervalo.
type straddle struct {
	ID            string
	ConditionID   string
	UpTokenID     string
	DownTokenID   string
	Shares        int
	Cost          float64 // ambas patas, con fees
	Fees          float64
	CapitalBefore float64
	OpenedAt      time.Time
	SettlesAt     time.Time
}

// Arbitrage compra N shares de AMBOS resultados cuando la suma de costes por
// share queda por debajo de $1: dos tokens complementarios pagan exactamente
// $1 en la resolución, así que el gap es beneficio garantizado.
// Estados: idle ⇄ open. Las dos patas se abren atómicamente o ninguna.
type Arbitrage struct {
	cfg    ArbitrageConfig
	exec   ports.OrderExecutor
	ledger ports.TradeStorage
	rec    Recorder

	open *straddle
}

// NewArbitrage crea la estrategia con sus dependencias inyectadas.
func NewArbitrage(cfg ArbitrageConfig, exec ports.OrderExecutor, ledger ports.TradeStorage, rec Recorder) *Arbitrage {
	def := DefaultArbitrageConfig()
	if cfg.MinProfitCents <= 0 {
		cfg.MinProfitCents = def.MinProfitCents
	}
	if cfg.MinShares < 1 {
		cfg.MinShares = def.MinShares
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Arbitrage{cfg: cfg, exec: exec, ledger: ledger, rec: rec}
}

func (a *Arbitrage) Name() string { return arbitrageName }

// Position devuelve la posición abierta como straddle (Side = BOTH).
func (a *Arbitrage) Position() (domain.OpenPosition, bool) {
	if a.open == nil {
		return domain.OpenPosition{}, false
	}
	return domain.OpenPosition{
		ID:          a.open.ID,
		Strategy:    arbitrageName,
		Side:        domain.SideBoth,
		Shares:      a.open.Shares,
		EntryCost:   a.open.Cost,
		EntryPrice:  a.open.Cost / float64(a.open.Shares),
		OpenedAt:    a.open.OpenedAt,
		SettlesAt:   a.open.SettlesAt,
		ConditionID: a.open.ConditionID,
		TokenID:     a.open.UpTokenID,
	}, true
}

// OnTick busca el mayor N tal que comprar N de ambos lados cuesta ≤ budget y
// deja ≥ MinProfitCents por share. Si ya hay posición no hace nada: el
// straddle se mantiene hasta la resolución (idempotencia de entradas).
func (a *Arbitrage) OnTick(ctx context.Context, w domain.WorldState) error {
	if a.open != nil {
		return nil
	}
	if w.FeedsDisagree {
		a.rec.Skip(arbitrageName, SkipFeedDisagreement)
		return nil
	}
	if !w.BothAsksQuoted() {
		a.rec.Skip(arbitrageName, SkipNoQuotes)
		return nil
	}
	if !w.FeesKnown() {
		a.rec.Skip(arbitrageName, SkipUnknownFee)
		return nil
	}

	balance, err := a.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("arbitrage.OnTick: balance: %w", err)
	}
	budget := balance
	if a.cfg.BudgetUSDC > 0 && a.cfg.BudgetUSDC < budget {
		budget = a.cfg.BudgetUSDC
	}

	shares, upFill, downFill, ok := a.size(w, budget)
	if !ok {
		return nil
	}

	slog.Info("arbitrage: straddle admitted",
		"shares", shares,
		"up_ask", w.Up.Book.BestAsk(),
		"down_ask", w.Down.Book.BestAsk(),
		"cost", upFill.Total+downFill.Total,
		"profit_per_share_cents", (1-(upFill.Total+downFill.Total)/float64(shares))*100,
	)

	// Las dos patas o ninguna: si la segunda falla se deshace la primera.
	gotUp, err := a.exec.BuyFOK(ctx, w.Up.TokenID, shares, upFill.WorstPrice)
	if err != nil {
		slog.Warn("arbitrage: up leg rejected", "err", err)
		a.rec.Skip(arbitrageName, SkipOrderRejected)
		return nil
	}
	gotDown, err := a.exec.BuyFOK(ctx, w.Down.TokenID, shares, downFill.WorstPrice)
	if err != nil {
		slog.Warn("arbitrage: down leg rejected, unwinding up leg", "err", err)
		if _, uerr := a.exec.SellFOK(ctx, w.Up.TokenID, shares, 0); uerr != nil {
			slog.Error("arbitrage: unwind failed, manual attention needed",
				"token", w.Up.TokenID, "shares", shares, "err", uerr)
		}
		a.rec.Skip(arbitrageName, SkipOrderRejected)
		return nil
	}

	a.open = &straddle{
		ID:            uuid.New().String(),
		ConditionID:   w.ConditionID,
		UpTokenID:     w.Up.TokenID,
		DownTokenID:   w.Down.TokenID,
		Shares:        shares,
		Cost:          gotUp.Total + gotDown.Total,
		Fees:          gotUp.Fee + gotDown.Fee,
		CapitalBefore: balance,
		OpenedAt:      w.ObservedAt,
		SettlesAt:     w.IntervalEnd,
	}
	if p, ok := a.Position(); ok {
		a.rec.Entry(p)
	}
	return nil
}

// size busca el mayor N viable. Ambas restricciones son monótonas en N: el
// coste por share no decrece (asks ordenados) así que el beneficio por share
// no crece, y el coste total solo sube.
func (a *Arbitrage) size(w domain.WorldState, budget float64) (int, domain.Fill, domain.Fill, bool) {
	var upAvail, downAvail float64
	for _, l := range w.Up.Book.Asks {
		upAvail += l.Size
	}
	for _, l := range w.Down.Book.Asks {
		downAvail += l.Size
	}
	hi := int(upAvail)
	if int(downAvail) < hi {
		hi = int(downAvail)
	}
	if hi < a.cfg.MinShares {
		a.rec.Skip(arbitrageName, SkipInsufficientDepth)
		return 0, domain.Fill{}, domain.Fill{}, false
	}

	feasible := func(n int) bool {
		up, err := domain.CostToBuy(w.Up.Book.Asks, n, w.Up.FeeBps)
		if err != nil {
			return false
		}
		down, err := domain.CostToBuy(w.Down.Book.Asks, n, w.Down.FeeBps)
		if err != nil {
			return false
		}
		total := up.Total + down.Total
		if total > budget {
			return false
		}
		profitCents := (1 - total/float64(n)) * 100
		return profitCents >= a.cfg.MinProfitCents
	}

	n, ok := domain.LargestWhere(a.cfg.MinShares, hi, feasible)
	if !ok {
		a.rec.Skip(arbitrageName, SkipEdgeTooSmall)
		return 0, domain.Fill{}, domain.Fill{}, false
	}

	upFill, err := domain.CostToBuy(w.Up.Book.Asks, n, w.Up.FeeBps)
	if err != nil {
		a.rec.Skip(arbitrageName, SkipInsufficientDepth)
		return 0, domain.Fill{}, domain.Fill{}, false
	}
	downFill, err := domain.CostToBuy(w.Down.Book.Asks, n, w.Down.FeeBps)
	if err != nil {
		a.rec.Skip(arbitrageName, SkipInsufficientDepth)
		return 0, domain.Fill{}, domain.Fill{}, false
	}
	return n, upFill, downFill, true
}

// OnIntervalEnd liquida el straddle: gane quien gane, N shares del ganador
// pagan $1 cada una y las del perdedor $0 → proceeds = N.
func (a *Arbitrage) OnIntervalEnd(ctx context.Context, w domain.WorldState, winner domain.Side) error {
	if a.open == nil {
		return nil
	}
	if a.open.ConditionID != w.ConditionID {
		slog.Warn("arbitrage: settlement for unexpected interval, freezing",
			"open", a.open.ConditionID, "world", w.ConditionID)
		a.rec.Skip(arbitrageName, SkipStaleInterval)
		return nil
	}

	winTok, loseTok := a.open.UpTokenID, a.open.DownTokenID
	if winner == domain.SideDown {
		winTok, loseTok = loseTok, winTok
	}
	proceeds, err := a.exec.Redeem(ctx, winTok, a.open.Shares, 1.0)
	if err != nil {
		return fmt.Errorf("arbitrage.OnIntervalEnd: redeem winner: %w", err)
	}
	if _, err := a.exec.Redeem(ctx, loseTok, a.open.Shares, 0.0); err != nil {
		return fmt.Errorf("arbitrage.OnIntervalEnd: redeem loser: %w", err)
	}

	capAfter, err := a.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("arbitrage.OnIntervalEnd: balance: %w", err)
	}

	pnl := proceeds - a.open.Cost - a.cfg.GasUSD
	rec := domain.TradeRecord{
		ID:            uuid.New().String(),
		Strategy:      arbitrageName,
		ConditionID:   a.open.ConditionID,
		Side:          domain.SideBoth,
		Shares:        a.open.Shares,
		EntryPrice:    a.open.Cost / float64(a.open.Shares),
		ExitPrice:     1.0,
		EntryFee:      a.open.Fees,
		GasUSD:        a.cfg.GasUSD,
		CapitalBefore: a.open.CapitalBefore,
		CapitalAfter:  capAfter,
		PnL:           pnl,
		ROI:           pnl / a.open.Cost,
		Reason:        "settlement",
		OpenedAt:      a.open.OpenedAt,
		ClosedAt:      w.ObservedAt,
	}
	if err := a.ledger.AppendTrade(ctx, rec); err != nil {
		slog.Warn("arbitrage: ledger append failed", "err", err)
	}
	a.rec.Exit(rec)
	a.open = nil
	return nil
}
