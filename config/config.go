package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	API        APIConfig        `yaml:"api"`
	Feeds      FeedsConfig      `yaml:"feeds"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Live       LiveConfig       `yaml:"live"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// BotConfig controla las cadencias y el capital inicial en paper mode.
type BotConfig struct {
	SpotSeconds        float64 `yaml:"spot_seconds"`
	BookSeconds        float64 `yaml:"book_seconds"`
	IntervalSeconds    float64 `yaml:"interval_seconds"`
	InitialBalanceUSDC float64 `yaml:"initial_balance_usdc"` // solo paper mode
}

// APIConfig contiene los base URLs de las APIs y la serie de intervalos.
type APIConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	SeriesSlug string `yaml:"series_slug"`
}

// FeedsConfig controla los feeds de spot del subyacente.
type FeedsConfig struct {
	Product      string  `yaml:"product"`        // producto de Coinbase, ej. BTC-USD
	AltSymbol    string  `yaml:"alt_symbol"`     // símbolo de Binance, vacío → sin alt feed
	PollsPerSec  float64 `yaml:"polls_per_sec"`  // ritmo máximo de consultas
	DisagreeFrac float64 `yaml:"disagree_frac"`  // umbral de discrepancia entre feeds
}

// StrategiesConfig habilita y parametriza cada estrategia. Los campos a cero
// caen en los defaults de producción de cada estrategia.
type StrategiesConfig struct {
	Arbitrage ArbitrageConfig `yaml:"arbitrage"`
	Lag       LagConfig       `yaml:"lag"`
	Certainty CertaintyConfig `yaml:"certainty"`
}

// ArbitrageConfig parametriza la estrategia de arbitraje sintético.
type ArbitrageConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BudgetUSDC     float64 `yaml:"budget_usdc"`
	MinProfitCents float64 `yaml:"min_profit_cents"`
	MinShares      int     `yaml:"min_shares"`
}

// LagConfig parametriza la estrategia de lag. Solo expone los tunables que
// se tocan en operación; el resto queda en defaults.
type LagConfig struct {
	Enabled             bool    `yaml:"enabled"`
	MoveThresholdUSD    float64 `yaml:"move_threshold_usd"`
	MinEdgeCents        float64 `yaml:"min_edge_cents"`
	RiskBudgetUSD       float64 `yaml:"risk_budget_usd"`
	MaxPositionUSD      float64 `yaml:"max_position_usd"`
	MinRiskReward       float64 `yaml:"min_risk_reward"`
	StopMode            string  `yaml:"stop_mode"` // percent | dynamic | strictest
	ConfirmTicks        int     `yaml:"confirm_ticks"`
	CooldownSeconds     float64 `yaml:"cooldown_seconds"`
	StopCooldownSeconds float64 `yaml:"stop_cooldown_seconds"`
}

// CertaintyConfig parametriza la estrategia de certeza tardía.
type CertaintyConfig struct {
	Enabled            bool    `yaml:"enabled"`
	EntryWindowMinutes float64 `yaml:"entry_window_minutes"`
	EntryMin           float64 `yaml:"entry_min"`
	EntryMax           float64 `yaml:"entry_max"`
	StopPrice          float64 `yaml:"stop_price"`
	MinShares          int     `yaml:"min_shares"`
}

// LiveConfig contiene los parámetros del modo live. La private key viene
// SIEMPRE del entorno (POLYGON_PRIVATE_KEY), nunca del YAML.
type LiveConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	RedeemOnChain bool   `yaml:"redeem_on_chain"`

	PrivateKey string `yaml:"-"`
}

// StorageConfig controla dónde se persiste el ledger.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Los valores del entorno sobreescriben los del YAML para las keys
// que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// SpotInterval devuelve la cadencia de spot como time.Duration.
func (c *Config) SpotInterval() time.Duration {
	return secondsToDuration(c.Bot.SpotSeconds)
}

// BookInterval devuelve la cadencia de books como time.Duration.
func (c *Config) BookInterval() time.Duration {
	return secondsToDuration(c.Bot.BookSeconds)
}

// IntervalPoll devuelve la cadencia del poll de intervalo como time.Duration.
func (c *Config) IntervalPoll() time.Duration {
	return secondsToDuration(c.Bot.IntervalSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("UPDOWNBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.Live.RPCURL = v
	}
	if v := os.Getenv("POLYGON_PRIVATE_KEY"); v != "" {
		cfg.Live.PrivateKey = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.SpotSeconds <= 0 {
		cfg.Bot.SpotSeconds = 1
	}
	if cfg.Bot.BookSeconds <= 0 {
		cfg.Bot.BookSeconds = 2
	}
	if cfg.Bot.IntervalSeconds <= 0 {
		cfg.Bot.IntervalSeconds = 15
	}
	if cfg.Bot.InitialBalanceUSDC <= 0 {
		cfg.Bot.InitialBalanceUSDC = 500
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.SeriesSlug == "" {
		cfg.API.SeriesSlug = "bitcoin-up-or-down-15-minute"
	}
	if cfg.Feeds.Product == "" {
		cfg.Feeds.Product = "BTC-USD"
	}
	if cfg.Feeds.PollsPerSec <= 0 {
		cfg.Feeds.PollsPerSec = 2
	}
	if cfg.Live.RPCURL == "" {
		cfg.Live.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "updownbot.db"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9107"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Sin estrategias en el YAML el bot corre las tres con defaults.
	if !cfg.Strategies.Arbitrage.Enabled && !cfg.Strategies.Lag.Enabled && !cfg.Strategies.Certainty.Enabled {
		cfg.Strategies.Arbitrage.Enabled = true
		cfg.Strategies.Lag.Enabled = true
		cfg.Strategies.Certainty.Enabled = true
	}
}
