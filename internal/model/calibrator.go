// Package model holds the online-learned components of the lag strategy: an
// EMA calibrator for market response per dollar of spot move, and a small
// linear regressor blended on top of it. Both learn only from observed
// responses and are never reset mid-run.
package model

// CalibratorConfig controls the EMA response-rate estimator.
type CalibratorConfig struct {
	// Weight is the EMA fold weight for each new observation.
	Weight float64
	// MinRate and MaxRate clamp each observed rate before folding, in cents
	// of market response per dollar of spot move.
	MinRate float64
	MaxRate float64
	// MinSamples is how many observations are needed before the EMA is
	// trusted; below it FallbackRate is used.
	MinSamples int
	// FallbackRate is the static cents-per-dollar used while cold.
	FallbackRate float64
}

// DefaultCalibratorConfig returns the production defaults.
func DefaultCalibratorConfig() CalibratorConfig {
	return CalibratorConfig{
		Weight:       0.15,
		MinRate:      0.005,
		MaxRate:      0.50,
		MinSamples:   8,
		FallbackRate: 0.04,
	}
}

// CalibratorState is the mutable state, exposed for observability.
type CalibratorState struct {
	EMA     float64
	Samples int
}

// Calibrator estimates how many cents the favored outcome token moves per
// dollar of underlying move, from observed lag responses.
type Calibrator struct {
	cfg   CalibratorConfig
	ema   float64
	count int
}

// NewCalibrator creates a calibrator. Zero config fields get defaults.
func NewCalibrator(cfg CalibratorConfig) *Calibrator {
	def := DefaultCalibratorConfig()
	if cfg.Weight <= 0 || cfg.Weight > 1 {
		cfg.Weight = def.Weight
	}
	if cfg.MaxRate <= cfg.MinRate {
		cfg.MinRate, cfg.MaxRate = def.MinRate, def.MaxRate
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.FallbackRate <= 0 {
		cfg.FallbackRate = def.FallbackRate
	}
	return &Calibrator{cfg: cfg}
}

// Observe folds one observed response into the EMA. responseCents is how far
// the favored side moved (in cents), spotMoveUSD the underlying move that
// caused it. Observations with a ~zero spot move are ignored.
func (c *Calibrator) Observe(responseCents, spotMoveUSD float64) {
	if spotMoveUSD < 0 {
		spotMoveUSD = -spotMoveUSD
	}
	if spotMoveUSD < 1e-9 {
		return
	}
	rate := responseCents / spotMoveUSD
	if rate < c.cfg.MinRate {
		rate = c.cfg.MinRate
	}
	if rate > c.cfg.MaxRate {
		rate = c.cfg.MaxRate
	}

	if c.count == 0 {
		c.ema = rate
	} else {
		c.ema = c.ema*(1-c.cfg.Weight) + rate*c.cfg.Weight
	}
	c.count++
}

// Rate returns the calibrated cents-per-dollar once warm, or the static
// fallback while the sample count is below MinSamples.
func (c *Calibrator) Rate() float64 {
	if c.count < c.cfg.MinSamples {
		return c.cfg.FallbackRate
	}
	return c.ema
}

// Warm reports whether the EMA has enough samples to be trusted.
func (c *Calibrator) Warm() bool {
	return c.count >= c.cfg.MinSamples
}

// State returns a snapshot of the calibrator state.
func (c *Calibrator) State() CalibratorState {
	return CalibratorState{EMA: c.ema, Samples: c.count}
}
