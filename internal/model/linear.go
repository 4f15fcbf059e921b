package model

// Feature indices of the linear lag-response model. All features are built by
// the lag strategy from the tick snapshot, normalized to roughly [-1, 1].
const (
	FeatFastDelta = iota // spot delta over the fast window
	FeatSlowDelta        // spot delta over the slow window
	FeatBaseDelta        // spot delta over the baseline window
	FeatSpread           // favored-side book spread
	FeatImbalance        // favored-side book imbalance
	FeatMicroPressure    // favored-side microprice pressure
	FeatFlowRatio        // taker volume-rate ratio
	FeatFlowImbalance    // taker buy/sell imbalance
	FeatFlowPriceDelta   // trade price drift in the short flow window
	NumFeatures
)

// Features is one input vector for the model.
type Features [NumFeatures]float64

// LinearConfig controls the online regressor.
type LinearConfig struct {
	LearningRate float64
	L2           float64
	MaxAbsWeight float64
	// MaxPrediction clamps the output, in cents.
	MaxPrediction float64
	// MinSamples gates blending: below it, only the calibrator heuristic is used.
	MinSamples int
	// MixFraction is the model's share of the blended prediction once warm.
	MixFraction float64
}

// DefaultLinearConfig returns the production defaults.
func DefaultLinearConfig() LinearConfig {
	return LinearConfig{
		LearningRate:  0.05,
		L2:            0.001,
		MaxAbsWeight:  5.0,
		MaxPrediction: 20.0,
		MinSamples:    20,
		MixFraction:   0.35,
	}
}

// LinearState is the mutable model state, exposed for observability.
type LinearState struct {
	Bias    float64
	Weights [NumFeatures]float64
	Samples int
}

// LinearModel is a tiny online-learned regressor predicting the lag response
// in cents from tick features.
type LinearModel struct {
	cfg     LinearConfig
	bias    float64
	weights [NumFeatures]float64
	count   int
}

// NewLinearModel creates a model. Zero config fields get defaults.
func NewLinearModel(cfg LinearConfig) *LinearModel {
	def := DefaultLinearConfig()
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.L2 < 0 {
		cfg.L2 = def.L2
	}
	if cfg.MaxAbsWeight <= 0 {
		cfg.MaxAbsWeight = def.MaxAbsWeight
	}
	if cfg.MaxPrediction <= 0 {
		cfg.MaxPrediction = def.MaxPrediction
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MixFraction <= 0 || cfg.MixFraction > 1 {
		cfg.MixFraction = def.MixFraction
	}
	return &LinearModel{cfg: cfg}
}

// Predict returns bias + Σ(weight·feature), clamped to [0, MaxPrediction] cents.
func (m *LinearModel) Predict(f Features) float64 {
	p := m.bias
	for i, w := range m.weights {
		p += w * f[i]
	}
	if p < 0 {
		return 0
	}
	if p > m.cfg.MaxPrediction {
		return m.cfg.MaxPrediction
	}
	return p
}

// Update performs one SGD step toward the observed response (in cents).
// Called only when the market actually responded to a spot move.
func (m *LinearModel) Update(f Features, targetCents float64) {
	err := targetCents - m.Predict(f)
	lr := m.cfg.LearningRate

	m.bias = clamp(m.bias+lr*err, m.cfg.MaxAbsWeight)
	for i := range m.weights {
		m.weights[i] = clamp(m.weights[i]+lr*(err*f[i]-m.cfg.L2*m.weights[i]), m.cfg.MaxAbsWeight)
	}
	m.count++
}

// Blend mixes the calibrator heuristic with the model prediction. While the
// model is cold the heuristic passes through untouched.
func (m *LinearModel) Blend(heuristicCents float64, f Features) float64 {
	if m.count < m.cfg.MinSamples {
		return heuristicCents
	}
	mix := m.cfg.MixFraction
	return heuristicCents*(1-mix) + m.Predict(f)*mix
}

// State returns a snapshot of the model state.
func (m *LinearModel) State() LinearState {
	return LinearState{Bias: m.bias, Weights: m.weights, Samples: m.count}
}

func clamp(v, maxAbs float64) float64 {
	if v > maxAbs {
		return maxAbs
	}
	if v < -maxAbs {
		return -maxAbs
	}
	return v
}
