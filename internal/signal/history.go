// Package signal keeps rolling market observations for the decision engine:
// spot price samples, one-minute OHLC candles, and taker-flow metrics.
package signal

import "time"

const (
	// DefaultHorizon is how far back spot samples are kept.
	DefaultHorizon = 120 * time.Second

	// dedupWindow collapses samples arriving within 250ms of the last one.
	dedupWindow = 250 * time.Millisecond
)

// Sample is a single spot price observation.
type Sample struct {
	At    time.Time
	Price float64
}

// History is an append-only, pruned sequence of spot samples for one underlying.
type History struct {
	samples []Sample
	horizon time.Duration
}

// NewHistory creates a History with the given rolling horizon.
// A non-positive horizon falls back to DefaultHorizon.
func NewHistory(horizon time.Duration) *History {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &History{horizon: horizon}
}

// Record appends a sample and prunes anything older than the horizon.
// Samples within 250ms of the previous one are dropped as duplicates.
func (h *History) Record(price float64, at time.Time) {
	if n := len(h.samples); n > 0 {
		last := h.samples[n-1]
		if at.Sub(last.At) < dedupWindow {
			return
		}
	}
	h.samples = append(h.samples, Sample{At: at, Price: price})
	h.prune(at)
}

func (h *History) prune(now time.Time) {
	cutoff := now.Add(-h.horizon)
	keep := 0
	for keep < len(h.samples) && h.samples[keep].At.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		h.samples = h.samples[keep:]
	}
}

// Latest returns the most recent sample, or false if the history is empty.
func (h *History) Latest() (Sample, bool) {
	if len(h.samples) == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	return len(h.samples)
}

// DeltaOverWindow returns latest price minus the price at or before now-w.
// Returns false if there is no sample old enough to anchor the window.
func (h *History) DeltaOverWindow(w time.Duration, now time.Time) (float64, bool) {
	if len(h.samples) == 0 {
		return 0, false
	}
	anchor := now.Add(-w)

	var base *Sample
	for i := len(h.samples) - 1; i >= 0; i-- {
		if !h.samples[i].At.After(anchor) {
			base = &h.samples[i]
			break
		}
	}
	if base == nil {
		return 0, false
	}
	latest := h.samples[len(h.samples)-1]
	return latest.Price - base.Price, true
}

// Span returns the time covered by the retained samples.
func (h *History) Span() time.Duration {
	if len(h.samples) < 2 {
		return 0
	}
	return h.samples[len(h.samples)-1].At.Sub(h.samples[0].At)
}
