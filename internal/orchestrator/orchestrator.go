package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
	"github.com/alejandrodnm/updownbot/internal/strategy"
)

const (
	defaultSpotInterval = 1 * time.Second
	defaultBookInterval = 2 * time.Second
	defaultIntervalPoll = 15 * time.Second
	tradeLookback       = 60 * time.Second
)

// Config controla las cadencias del orquestador.
type Config struct {
	SpotInterval time.Duration
	BookInterval time.Duration
	IntervalPoll time.Duration
}

// Orchestrator es el único dueño del snapshot de mundo. Cada cadencia corre
// en su goroutine con un flag de in-flight: los disparos que solapan con un
// paso aún en curso se descartan, nunca se encolan. Las estrategias se
// evalúan de forma síncrona dentro del paso de books, bajo el mismo mutex
// que serializa las escrituras del snapshot.
type Orchestrator struct {
	cfg Config

	spots      ports.SpotObserver
	markets    ports.MarketProvider
	books      ports.BookProvider
	trades     ports.TradeProvider // opcional
	exec       ports.OrderExecutor
	ledger     ports.TradeStorage
	notify     ports.Notifier
	strategies []strategy.Strategy
	metrics    *Metrics

	mu    sync.Mutex
	world domain.WorldState

	spotBusy     atomic.Bool
	bookBusy     atomic.Bool
	intervalBusy atomic.Bool

	// pending guarda los intervalos terminados cuyo ganador aún no está
	// publicado. Solo lo toca la cadencia de interval, que nunca solapa
	// consigo misma gracias al flag de in-flight.
	pending []pendingSettlement

	tradeCursor map[string]time.Time
	startedAt   time.Time
}

// pendingSettlement es una liquidación aplazada: el snapshot se captura en el
// momento del rollover para que las estrategias liquiden contra el intervalo
// que realmente operaron.
type pendingSettlement struct {
	conditionID string
	snapshot    domain.WorldState
}

// New crea el orquestador. trades puede ser nil si no hay fuente de taker
// trades; exec solo se usa para la métrica de equity.
func New(
	cfg Config,
	spots ports.SpotObserver,
	markets ports.MarketProvider,
	books ports.BookProvider,
	trades ports.TradeProvider,
	exec ports.OrderExecutor,
	ledger ports.TradeStorage,
	notify ports.Notifier,
	strategies []strategy.Strategy,
	metrics *Metrics,
) *Orchestrator {
	if cfg.SpotInterval <= 0 {
		cfg.SpotInterval = defaultSpotInterval
	}
	if cfg.BookInterval <= 0 {
		cfg.BookInterval = defaultBookInterval
	}
	if cfg.IntervalPoll <= 0 {
		cfg.IntervalPoll = defaultIntervalPoll
	}
	return &Orchestrator{
		cfg:         cfg,
		spots:       spots,
		markets:     markets,
		books:       books,
		trades:      trades,
		exec:        exec,
		ledger:      ledger,
		notify:      notify,
		strategies:  strategies,
		metrics:     metrics,
		tradeCursor: make(map[string]time.Time),
	}
}

// Run resuelve el intervalo inicial y ejecuta las tres cadencias hasta que el
// contexto se cancele. Al salir imprime el resumen de la sesión.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startedAt = time.Now()

	iv, err := o.markets.CurrentInterval(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator.Run: initial interval: %w", err)
	}
	o.installInterval(iv)
	slog.Info("orchestrator: interval resolved",
		"condition", iv.ConditionID,
		"up", iv.UpTokenID,
		"down", iv.DownTokenID,
		"ends", iv.EndTime,
	)

	// Primer snapshot completo antes de arrancar los tickers.
	if err := o.refreshSpot(ctx); err != nil {
		slog.Warn("orchestrator: initial spot refresh failed", "err", err)
	}
	if err := o.refreshBooks(ctx); err != nil {
		slog.Warn("orchestrator: initial book refresh failed", "err", err)
	}

	var wg sync.WaitGroup
	loops := []struct {
		name  string
		every time.Duration
		busy  *atomic.Bool
		step  func(context.Context) error
	}{
		{"spot", o.cfg.SpotInterval, &o.spotBusy, o.refreshSpot},
		{"books", o.cfg.BookInterval, &o.bookBusy, o.refreshBooks},
		{"interval", o.cfg.IntervalPoll, &o.intervalBusy, o.refreshInterval},
	}
	for _, l := range loops {
		wg.Add(1)
		go func(name string, every time.Duration, busy *atomic.Bool, step func(context.Context) error) {
			defer wg.Done()
			o.loop(ctx, name, every, busy, step)
		}(l.name, l.every, l.busy, l.step)
	}
	wg.Wait()

	o.printSummary()
	return nil
}

// loop dispara el paso en cada tick. El paso corre en su propia goroutine y
// el flag de in-flight descarta los disparos que lo pillan aún trabajando.
func (o *Orchestrator) loop(ctx context.Context, name string, every time.Duration, busy *atomic.Bool, step func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tryStep(ctx, name, busy, step)
		}
	}
}

// tryStep lanza el paso si la cadencia está libre. Devuelve false si el
// disparo se descartó por solaparse con el paso anterior.
func (o *Orchestrator) tryStep(ctx context.Context, name string, busy *atomic.Bool, step func(context.Context) error) bool {
	if !busy.CompareAndSwap(false, true) {
		o.metrics.CadenceDrops.WithLabelValues(name).Inc()
		slog.Debug("orchestrator: cadence busy, firing dropped", "cadence", name)
		return false
	}
	go func() {
		defer busy.Store(false)
		if err := step(ctx); err != nil {
			slog.Warn("orchestrator: step failed", "cadence", name, "err", err)
		}
	}()
	return true
}

// refreshSpot consulta los feeds y actualiza la parte spot del snapshot.
func (o *Orchestrator) refreshSpot(ctx context.Context) error {
	obs, err := o.spots.Observe(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator.refreshSpot: %w", err)
	}

	o.mu.Lock()
	o.world.Spot = obs.Primary
	o.world.AltSpot = obs.Alt
	o.world.FeedsDisagree = obs.Disagree
	o.mu.Unlock()

	o.metrics.SpotPrice.Set(obs.Primary.Price)
	if obs.Disagree {
		slog.Warn("orchestrator: spot feeds disagree",
			"primary", obs.Primary.Price,
			"feed", obs.Primary.Feed,
		)
	}
	return nil
}

// refreshBooks es el paso caliente: books, fees y trades frescos, snapshot
// consistente y un tick síncrono de cada estrategia sobre él.
func (o *Orchestrator) refreshBooks(ctx context.Context) error {
	start := time.Now()
	defer func() {
		o.metrics.BookLatencyMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	o.mu.Lock()
	upTok, downTok := o.world.Up.TokenID, o.world.Down.TokenID
	o.mu.Unlock()
	if upTok == "" || downTok == "" {
		return nil
	}

	booksByTok, err := o.books.FetchOrderBooks(ctx, []string{upTok, downTok})
	if err != nil {
		return fmt.Errorf("orchestrator.refreshBooks: books: %w", err)
	}

	upFee, upKnown := o.fetchFee(ctx, upTok)
	downFee, downKnown := o.fetchFee(ctx, downTok)

	upTrades := o.fetchTrades(ctx, upTok)
	downTrades := o.fetchTrades(ctx, downTok)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.world.Up.Book = booksByTok[upTok]
	o.world.Down.Book = booksByTok[downTok]
	o.world.Up.FeeBps, o.world.Up.FeeKnown = upFee, upKnown
	o.world.Down.FeeBps, o.world.Down.FeeKnown = downFee, downKnown
	o.world.Up.Trades = upTrades
	o.world.Down.Trades = downTrades
	o.world.ObservedAt = time.Now()

	snapshot := o.world
	for _, s := range o.strategies {
		if err := s.OnTick(ctx, snapshot); err != nil {
			slog.Error("strategy tick failed", "strategy", s.Name(), "err", err)
		}
	}

	o.observeEquity(ctx)
	return nil
}

// refreshInterval vigila el rollover: cuando el catálogo devuelve un
// condition ID nuevo, encola la liquidación del anterior y reinstala el
// snapshot. Las liquidaciones pendientes se reintentan en cada poll.
func (o *Orchestrator) refreshInterval(ctx context.Context) error {
	o.settlePending(ctx)

	iv, err := o.markets.CurrentInterval(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator.refreshInterval: %w", err)
	}

	o.mu.Lock()
	current := o.world.ConditionID
	snapshot := o.world
	o.mu.Unlock()

	if iv.ConditionID == current {
		// Mismo intervalo: solo refresca la hora de fin por si el catálogo
		// la corrige.
		o.mu.Lock()
		o.world.IntervalEnd = iv.EndTime
		o.mu.Unlock()
		return nil
	}

	if current != "" {
		o.pending = append(o.pending, pendingSettlement{conditionID: current, snapshot: snapshot})
	}

	o.installInterval(iv)
	o.metrics.Intervals.Inc()
	slog.Info("orchestrator: interval rolled",
		"condition", iv.ConditionID,
		"ends", iv.EndTime,
	)

	o.settlePending(ctx)
	return nil
}

// settlePending reintenta las liquidaciones aplazadas. El mercado siguiente
// suele aparecer en el catálogo antes de que el anterior publique su ganador,
// así que el intento inmediato tras el rollover falla con normalidad y la
// liquidación se entrega en un poll posterior.
func (o *Orchestrator) settlePending(ctx context.Context) {
	if len(o.pending) == 0 {
		return
	}
	remaining := o.pending[:0]
	for _, p := range o.pending {
		if err := o.settle(ctx, p.conditionID, p.snapshot); err != nil {
			slog.Warn("orchestrator: settlement still pending",
				"condition", p.conditionID, "err", err)
			remaining = append(remaining, p)
		}
	}
	o.pending = remaining
}

// settle resuelve el ganador del intervalo terminado y se lo comunica a cada
// estrategia para que liquide lo que tenga abierto. El snapshot es el del
// intervalo terminado, no el del mundo actual.
func (o *Orchestrator) settle(ctx context.Context, conditionID string, snapshot domain.WorldState) error {
	winner, err := o.markets.Winner(ctx, conditionID)
	if err != nil {
		return fmt.Errorf("orchestrator.settle: winner: %w", err)
	}
	slog.Info("orchestrator: interval resolved", "condition", conditionID, "winner", winner)

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, s := range o.strategies {
		if err := s.OnIntervalEnd(ctx, snapshot, winner); err != nil {
			slog.Error("strategy settlement failed", "strategy", s.Name(), "err", err)
		}
	}
	o.observeEquity(ctx)
	return nil
}

// installInterval resetea la parte de mercado del snapshot para el intervalo
// nuevo. El spot sobrevive al rollover: es el mismo subyacente.
func (o *Orchestrator) installInterval(iv domain.Interval) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.world.ConditionID = iv.ConditionID
	o.world.IntervalEnd = iv.EndTime
	o.world.Up = domain.OutcomeQuote{TokenID: iv.UpTokenID}
	o.world.Down = domain.OutcomeQuote{TokenID: iv.DownTokenID}
}

// fetchFee tolera fees aún no publicados: el tick se evalúa con FeeKnown en
// false y las estrategias deciden saltarse la entrada.
func (o *Orchestrator) fetchFee(ctx context.Context, tokenID string) (float64, bool) {
	bps, err := o.books.FeeBps(ctx, tokenID)
	if err != nil {
		slog.Debug("orchestrator: fee unknown", "token", tokenID, "err", err)
		return 0, false
	}
	return domain.NormalizeFeeBps(bps), true
}

// fetchTrades avanza el cursor incremental de taker trades del token.
func (o *Orchestrator) fetchTrades(ctx context.Context, tokenID string) []domain.TakerTrade {
	if o.trades == nil {
		return nil
	}
	since, ok := o.tradeCursor[tokenID]
	if !ok {
		since = time.Now().Add(-tradeLookback)
	}
	trades, err := o.trades.RecentTrades(ctx, tokenID, since)
	if err != nil {
		slog.Debug("orchestrator: trade fetch failed", "token", tokenID, "err", err)
		return nil
	}
	if len(trades) > 0 {
		o.tradeCursor[tokenID] = trades[len(trades)-1].At
	}
	return trades
}

// observeEquity publica el balance actual. Se llama con o.mu tomado.
func (o *Orchestrator) observeEquity(ctx context.Context) {
	if o.exec == nil {
		return
	}
	balance, err := o.exec.Balance(ctx)
	if err != nil {
		slog.Debug("orchestrator: balance query failed", "err", err)
		return
	}
	o.metrics.Equity.Set(balance)
}

// printSummary vuelca la tabla de la sesión al notifier.
func (o *Orchestrator) printSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	trades, err := o.ledger.TradesSince(ctx, o.startedAt)
	if err != nil {
		slog.Warn("orchestrator: summary query failed", "err", err)
		return
	}
	if o.notify == nil {
		return
	}
	if err := o.notify.Summary(ctx, trades); err != nil {
		slog.Warn("orchestrator: summary print failed", "err", err)
	}
}
