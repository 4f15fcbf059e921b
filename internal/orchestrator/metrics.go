package orchestrator

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// Metrics agrupa las métricas Prometheus del bot.
type Metrics struct {
	Skips         *prometheus.CounterVec
	Entries       *prometheus.CounterVec
	Exits         *prometheus.CounterVec
	CadenceDrops  *prometheus.CounterVec
	Intervals     prometheus.Counter
	SpotPrice     prometheus.Gauge
	Equity        prometheus.Gauge
	RealizedPnL   prometheus.Gauge
	BookLatencyMs prometheus.Histogram
}

// NewMetrics crea y registra las métricas en el registerer dado.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Skips: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "updownbot_skips_total",
			Help: "Decisiones descartadas por estrategia y razón",
		}, []string{"strategy", "reason"}),

		Entries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "updownbot_entries_total",
			Help: "Entradas admitidas por estrategia y lado",
		}, []string{"strategy", "side"}),

		Exits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "updownbot_exits_total",
			Help: "Cierres por estrategia y razón",
		}, []string{"strategy", "reason"}),

		CadenceDrops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "updownbot_cadence_drops_total",
			Help: "Disparos de ticker descartados por solaparse con el paso anterior",
		}, []string{"cadence"}),

		Intervals: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "updownbot_intervals_total",
			Help: "Intervalos de 15 minutos observados hasta su resolución",
		}),

		SpotPrice: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "updownbot_spot_price_usd",
			Help: "Último precio spot del subyacente",
		}),

		Equity: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "updownbot_equity_usdc",
			Help: "Balance USDC disponible en el executor",
		}),

		RealizedPnL: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "updownbot_realized_pnl_usd",
			Help: "PnL realizado acumulado de la sesión",
		}),

		BookLatencyMs: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "updownbot_book_refresh_ms",
			Help:    "Duración del paso de refresco de books y evaluación",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
	}
}

// recorder implementa strategy.Recorder: cuenta en Prometheus y reenvía
// entradas y cierres al notifier del operador.
type Recorder struct {
	metrics *Metrics
	notify  ports.Notifier

	realized float64
}

// NewRecorder crea el recorder que las estrategias reciben inyectado.
func NewRecorder(m *Metrics, notify ports.Notifier) *Recorder {
	return &Recorder{metrics: m, notify: notify}
}

func (r *Recorder) Skip(strategy, reason string) {
	r.metrics.Skips.WithLabelValues(strategy, reason).Inc()
	slog.Debug("decision skipped", "strategy", strategy, "reason", reason)
}

func (r *Recorder) Entry(p domain.OpenPosition) {
	r.metrics.Entries.WithLabelValues(p.Strategy, string(p.Side)).Inc()
	if r.notify == nil {
		return
	}
	if err := r.notify.TradeOpened(context.Background(), p); err != nil {
		slog.Warn("notifier: trade opened", "err", err)
	}
}

func (r *Recorder) Exit(t domain.TradeRecord) {
	r.metrics.Exits.WithLabelValues(t.Strategy, t.Reason).Inc()
	r.realized += t.PnL
	r.metrics.RealizedPnL.Set(r.realized)
	if r.notify == nil {
		return
	}
	if err := r.notify.TradeClosed(context.Background(), t); err != nil {
		slog.Warn("notifier: trade closed", "err", err)
	}
}
