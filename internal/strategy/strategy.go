package strategy

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Strategy define el contrato de los módulos de decisión. El Orchestrator
// llama a OnTick con un snapshot consistente; la estrategia muta solo su
// propio estado (posición, ledger, calibración) y pide órdenes al executor.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// OnTick evalúa un snapshot del mundo. Nunca es fatal: los rechazos se
	// registran como skips y el siguiente tick reevalúa limpio.
	OnTick(ctx context.Context, w domain.WorldState) error

	// OnIntervalEnd liquida la posición abierta (si la hay) al resolverse el
	// intervalo: el lado ganador paga $1/share, el perdedor $0.
	OnIntervalEnd(ctx context.Context, w domain.WorldState, winner domain.Side) error

	// Position devuelve la posición abierta, si existe.
	Position() (domain.OpenPosition, bool)
}

// Razones de skip, registradas para observabilidad. Saltar un tick nunca es
// un error: la tabla de errores del núcleo las trata como "skip, no fatal".
const (
	SkipUnknownFee        = "unknown_fee"
	SkipNoQuotes          = "no_quotes"
	SkipFeedDisagreement  = "feed_disagreement"
	SkipInsufficientDepth = "insufficient_depth"
	SkipBudgetTooSmall    = "budget_too_small"
	SkipRiskCap           = "risk_cap"
	SkipEdgeTooSmall      = "edge_too_small"
	SkipRRTooLow          = "rr_too_low"
	SkipTargetUnreachable = "target_unreachable"
	SkipCooldown          = "cooldown"
	SkipConfirming        = "confirming"
	SkipWarmup            = "warmup"
	SkipOutsideWindow     = "outside_window"
	SkipNotBullish        = "not_bullish"
	SkipBandMiss          = "band_miss"
	SkipSpreadTooWide     = "spread_too_wide"
	SkipStaleInterval     = "stale_interval"
	SkipOrderRejected     = "order_rejected"
)

// Recorder recibe los eventos de decisión para métricas y logs. La
// implementación de producción vive en el orchestrator (prometheus + slog).
type Recorder interface {
	// Skip registra un tick saltado con su razón.
	Skip(strategy, reason string)

	// Entry registra una entrada admitida.
	Entry(p domain.OpenPosition)

	// Exit registra un ciclo de vida completado.
	Exit(t domain.TradeRecord)
}

// NopRecorder descarta todos los eventos. Útil en tests.
type NopRecorder struct{}

func (NopRecorder) Skip(string, string)        {}
func (NopRecorder) Entry(domain.OpenPosition)  {}
func (NopRecorder) Exit(domain.TradeRecord)    {}

// confirmCounter cuenta ticks consecutivos con la misma clave. Cambiar de
// clave reinicia la cuenta: es el filtro de ruido de los confirmation ticks.
type confirmCounter struct {
	key string
	n   int
}

// bump registra una observación y devuelve la cuenta consecutiva actual.
func (c *confirmCounter) bump(key string) int {
	if key == c.key {
		c.n++
	} else {
		c.key = key
		c.n = 1
	}
	return c.n
}

func (c *confirmCounter) reset() {
	c.key = ""
	c.n = 0
}
