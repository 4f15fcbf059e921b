package signal

import "time"

const (
	// DefaultShortWindow is the recent window flow metrics are computed over.
	DefaultShortWindow = 10 * time.Second
	// DefaultBaselineWindow is the longer window used as the comparison base.
	DefaultBaselineWindow = 60 * time.Second

	// minBaselineTrades is the minimum trade count in the baseline window for
	// the ratio to mean anything.
	minBaselineTrades = 5
)

type flowTrade struct {
	at       time.Time
	price    float64
	size     float64
	takerBuy bool
}

// FlowStats summarizes recent taker activity against a longer baseline.
type FlowStats struct {
	// VolumeRatio is short-window volume/sec divided by baseline volume/sec.
	// > 1 means activity is accelerating.
	VolumeRatio float64
	// Imbalance is (buyVol - sellVol) / totalVol over the short window, in [-1, 1].
	Imbalance float64
	// PriceDelta is last trade price minus first trade price in the short window.
	PriceDelta float64
}

// FlowTracker keeps a rolling window of taker trades for one token and derives
// volume-rate and imbalance metrics from it.
type FlowTracker struct {
	trades   []flowTrade
	short    time.Duration
	baseline time.Duration
}

// NewFlowTracker creates a tracker with the given windows. Non-positive values
// fall back to the defaults.
func NewFlowTracker(short, baseline time.Duration) *FlowTracker {
	if short <= 0 {
		short = DefaultShortWindow
	}
	if baseline <= short {
		baseline = DefaultBaselineWindow
	}
	return &FlowTracker{short: short, baseline: baseline}
}

// RecordTrade appends a taker trade and prunes anything outside the baseline.
func (ft *FlowTracker) RecordTrade(at time.Time, price, size float64, takerBuy bool) {
	ft.trades = append(ft.trades, flowTrade{at: at, price: price, size: size, takerBuy: takerBuy})
	cutoff := at.Add(-ft.baseline)
	keep := 0
	for keep < len(ft.trades) && ft.trades[keep].at.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		ft.trades = ft.trades[keep:]
	}
}

// Stats computes flow metrics at the given instant. Returns false when the
// baseline has too little data to form a meaningful comparison.
func (ft *FlowTracker) Stats(now time.Time) (FlowStats, bool) {
	baseCutoff := now.Add(-ft.baseline)
	shortCutoff := now.Add(-ft.short)

	var baseVol float64
	var baseCount int
	var shortVol, buyVol, sellVol float64
	var firstPx, lastPx float64

	for _, tr := range ft.trades {
		if tr.at.Before(baseCutoff) {
			continue
		}
		baseVol += tr.size
		baseCount++
		if tr.at.Before(shortCutoff) {
			continue
		}
		shortVol += tr.size
		if tr.takerBuy {
			buyVol += tr.size
		} else {
			sellVol += tr.size
		}
		if firstPx == 0 {
			firstPx = tr.price
		}
		lastPx = tr.price
	}

	if baseCount < minBaselineTrades || baseVol == 0 {
		return FlowStats{}, false
	}

	baseRate := baseVol / ft.baseline.Seconds()
	shortRate := shortVol / ft.short.Seconds()

	stats := FlowStats{VolumeRatio: shortRate / baseRate}
	if total := buyVol + sellVol; total > 0 {
		stats.Imbalance = (buyVol - sellVol) / total
	}
	if firstPx > 0 {
		stats.PriceDelta = lastPx - firstPx
	}
	return stats, true
}
