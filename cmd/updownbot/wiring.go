package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/updownbot/config"
	"github.com/alejandrodnm/updownbot/internal/adapters/onchain"
	"github.com/alejandrodnm/updownbot/internal/model"
	"github.com/alejandrodnm/updownbot/internal/ports"
	"github.com/alejandrodnm/updownbot/internal/strategy"
)

// buildStrategies instancia las estrategias habilitadas. gasUSD > 0 es el
// coste de redención estimado en vivo y sustituye al default estático.
func buildStrategies(cfg config.StrategiesConfig, gasUSD float64, exec ports.OrderExecutor, ledger ports.TradeStorage, rec strategy.Recorder) []strategy.Strategy {
	var out []strategy.Strategy

	if cfg.Arbitrage.Enabled {
		ac := arbitrageConfig(cfg.Arbitrage, gasUSD)
		out = append(out, strategy.NewArbitrage(ac, exec, ledger, rec))
		slog.Info("strategy enabled", "name", "arbitrage", "min_profit_cents", ac.MinProfitCents)
	}

	if cfg.Lag.Enabled {
		lc := lagConfig(cfg.Lag, gasUSD)
		out = append(out, strategy.NewLag(lc, model.CalibratorConfig{}, model.LinearConfig{}, exec, ledger, rec))
		slog.Info("strategy enabled", "name", "lag",
			"move_threshold_usd", lc.MoveThresholdUSD,
			"stop_mode", lc.StopMode,
		)
	}

	if cfg.Certainty.Enabled {
		cc := certaintyConfig(cfg.Certainty, gasUSD)
		out = append(out, strategy.NewCertainty(cc, exec, ledger, rec))
		slog.Info("strategy enabled", "name", "certainty",
			"entry_band", []float64{cc.EntryMin, cc.EntryMax},
			"stop_price", cc.StopPrice,
		)
	}

	return out
}

// Las secciones del YAML solo sobreescriben los tunables que declaran; el
// resto queda en los defaults de producción de cada estrategia.

func arbitrageConfig(sec config.ArbitrageConfig, gasUSD float64) strategy.ArbitrageConfig {
	ac := strategy.DefaultArbitrageConfig()
	ac.BudgetUSDC = sec.BudgetUSDC
	if sec.MinProfitCents > 0 {
		ac.MinProfitCents = sec.MinProfitCents
	}
	if sec.MinShares > 0 {
		ac.MinShares = sec.MinShares
	}
	if gasUSD > 0 {
		ac.GasUSD = gasUSD
	}
	return ac
}

func lagConfig(sec config.LagConfig, gasUSD float64) strategy.LagConfig {
	lc := strategy.DefaultLagConfig()
	if sec.MoveThresholdUSD > 0 {
		lc.MoveThresholdUSD = sec.MoveThresholdUSD
	}
	if sec.MinEdgeCents > 0 {
		lc.MinEdgeCents = sec.MinEdgeCents
	}
	if sec.RiskBudgetUSD > 0 {
		lc.RiskBudgetUSD = sec.RiskBudgetUSD
	}
	if sec.MaxPositionUSD > 0 {
		lc.MaxPositionUSD = sec.MaxPositionUSD
	}
	if sec.MinRiskReward > 0 {
		lc.MinRiskReward = sec.MinRiskReward
	}
	if sec.StopMode != "" {
		lc.StopMode = sec.StopMode
	}
	if sec.ConfirmTicks > 0 {
		lc.ConfirmTicks = sec.ConfirmTicks
	}
	if sec.CooldownSeconds > 0 {
		lc.Cooldown = secondsDuration(sec.CooldownSeconds)
	}
	if sec.StopCooldownSeconds > 0 {
		lc.StopCooldown = secondsDuration(sec.StopCooldownSeconds)
	}
	if gasUSD > 0 {
		lc.GasUSD = gasUSD
	}
	return lc
}

func certaintyConfig(sec config.CertaintyConfig, gasUSD float64) strategy.CertaintyConfig {
	cc := strategy.DefaultCertaintyConfig()
	if sec.EntryWindowMinutes > 0 {
		cc.EntryWindow = time.Duration(sec.EntryWindowMinutes * float64(time.Minute))
	}
	if sec.EntryMin > 0 {
		cc.EntryMin = sec.EntryMin
	}
	if sec.EntryMax > 0 {
		cc.EntryMax = sec.EntryMax
	}
	if sec.StopPrice > 0 {
		cc.StopPrice = sec.StopPrice
	}
	if sec.MinShares > 0 {
		cc.MinShares = sec.MinShares
	}
	if gasUSD > 0 {
		cc.GasUSD = gasUSD
	}
	return cc
}

// onchainRedeemer construye el cliente de redención y garantiza las
// aprobaciones de contratos antes de operar.
func onchainRedeemer(cfg *config.Config) (ports.PositionRedeemer, error) {
	rc, err := onchain.NewRedeemClient(cfg.Live.RPCURL, cfg.Live.PrivateKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := rc.EnsureApprovals(ctx); err != nil {
		return nil, err
	}

	return rc, nil
}

// liveGasCost consulta el coste real de una redención para que las estrategias
// lo descuenten del PnL en vez del default estático. Si la estimación falla se
// devuelve 0 y los defaults siguen en pie.
func liveGasCost(r ports.PositionRedeemer) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	gas, err := r.EstimateGasCostUSD(ctx)
	if err != nil {
		slog.Warn("gas estimate failed, strategies keep their default", "err", err)
		return 0
	}
	slog.Info("redemption gas estimated", "usd", gas)
	return gas
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
