package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/updownbot/config"
	"github.com/alejandrodnm/updownbot/internal/adapters/feed"
	"github.com/alejandrodnm/updownbot/internal/adapters/notify"
	"github.com/alejandrodnm/updownbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/updownbot/internal/adapters/sim"
	"github.com/alejandrodnm/updownbot/internal/adapters/storage"
	"github.com/alejandrodnm/updownbot/internal/orchestrator"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	live := flag.Bool("live", false, "trade with real funds (default: paper)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("updownbot starting",
		"config", *configPath,
		"live", *live,
		"series", cfg.API.SeriesSlug,
		"spot_cadence", cfg.SpotInterval(),
		"book_cadence", cfg.BookInterval(),
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.API.SeriesSlug)

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open ledger", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer ledger.Close()

	spots := buildSpotObserver(cfg.Feeds)

	exec, gasUSD, err := buildExecutor(cfg, client, *live)
	if err != nil {
		slog.Error("failed to build executor", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(reg)
	notifier := notify.NewConsole()
	rec := orchestrator.NewRecorder(metrics, notifier)

	strategies := buildStrategies(cfg.Strategies, gasUSD, exec, ledger, rec)
	if len(strategies) == 0 {
		slog.Error("no strategies enabled")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr, reg)
	}

	orch := orchestrator.New(
		orchestrator.Config{
			SpotInterval: cfg.SpotInterval(),
			BookInterval: cfg.BookInterval(),
			IntervalPoll: cfg.IntervalPoll(),
		},
		spots, client, client, client,
		exec, ledger, notifier, strategies, metrics,
	)

	if err := orch.Run(ctx); err != nil {
		slog.Error("orchestrator exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("updownbot stopped cleanly")
}

// buildSpotObserver monta el feed primario (Coinbase) y el alternativo
// (Binance) si está configurado.
func buildSpotObserver(cfg config.FeedsConfig) ports.SpotObserver {
	primary := feed.NewCoinbaseFeed("", cfg.Product)

	var alt ports.SpotFeed
	if cfg.AltSymbol != "" {
		alt = feed.NewBinanceFeed("", cfg.AltSymbol)
	}

	return feed.NewComposite(primary, alt, cfg.PollsPerSec, cfg.DisagreeFrac)
}

// buildExecutor elige entre el executor simulado y el live según el flag.
// En live con redención on-chain también devuelve el coste de gas estimado,
// que las estrategias descuentan del PnL.
func buildExecutor(cfg *config.Config, client *polymarket.Client, live bool) (ports.OrderExecutor, float64, error) {
	if !live {
		slog.Info("paper mode", "initial_balance", cfg.Bot.InitialBalanceUSDC)
		return sim.NewExecutor(client, cfg.Bot.InitialBalanceUSDC), 0, nil
	}

	auth, err := polymarket.NewAuthClient(client, cfg.Live.PrivateKey)
	if err != nil {
		return nil, 0, err
	}

	var redeemer ports.PositionRedeemer
	var gasUSD float64
	if cfg.Live.RedeemOnChain {
		rc, err := onchainRedeemer(cfg)
		if err != nil {
			return nil, 0, err
		}
		redeemer = rc
		gasUSD = liveGasCost(rc)
	}

	slog.Warn("LIVE MODE: trading with real funds", "wallet", auth.Address())
	le, err := polymarket.NewLiveExecutor(auth, cfg.Live.RPCURL, redeemer)
	if err != nil {
		return nil, 0, err
	}
	return le, gasUSD, nil
}

// serveMetrics expone el registro de Prometheus hasta que el contexto muera.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	slog.Info("metrics endpoint up", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warn("metrics server stopped", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
