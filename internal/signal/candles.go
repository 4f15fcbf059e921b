package signal

import "time"

// DefaultMaxArchive is the number of finished candles kept per tracked side.
const DefaultMaxArchive = 5

// Candle is a one-minute OHLC bucket keyed by wall-clock minute.
type Candle struct {
	Minute    int64 // unix timestamp / 60
	Open      float64
	High      float64
	Low       float64
	Close     float64
	StartedAt time.Time
}

// CandleTracker maintains one live candle plus a bounded archive of finished
// candles for a single tracked side.
type CandleTracker struct {
	live       *Candle
	archive    []Candle
	maxArchive int
}

// NewCandleTracker creates a tracker keeping up to maxArchive finished candles.
func NewCandleTracker(maxArchive int) *CandleTracker {
	if maxArchive <= 0 {
		maxArchive = DefaultMaxArchive
	}
	return &CandleTracker{maxArchive: maxArchive}
}

// Record folds a price observation into the live candle. On a minute rollover
// the finished candle is archived and a new one opens at the latest price.
func (ct *CandleTracker) Record(price float64, at time.Time) {
	minute := at.Unix() / 60

	if ct.live == nil {
		ct.live = &Candle{
			Minute:    minute,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			StartedAt: at.Truncate(time.Minute),
		}
		return
	}

	if minute != ct.live.Minute {
		ct.archive = append(ct.archive, *ct.live)
		if len(ct.archive) > ct.maxArchive {
			ct.archive = ct.archive[len(ct.archive)-ct.maxArchive:]
		}
		ct.live = &Candle{
			Minute:    minute,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			StartedAt: at.Truncate(time.Minute),
		}
		return
	}

	if price > ct.live.High {
		ct.live.High = price
	}
	if price < ct.live.Low {
		ct.live.Low = price
	}
	ct.live.Close = price
}

// Live returns the current candle, or false if nothing was recorded yet.
func (ct *CandleTracker) Live() (Candle, bool) {
	if ct.live == nil {
		return Candle{}, false
	}
	return *ct.live, true
}

// Archive returns the finished candles, oldest first.
func (ct *CandleTracker) Archive() []Candle {
	return ct.archive
}

// IsBullish reports one-minute momentum: the live candle closes at or above
// its open, OR at or above the previous candle's close. The second clause
// tolerates a pullback within the current minute when the prior minute closed
// lower.
func (ct *CandleTracker) IsBullish() bool {
	if ct.live == nil {
		return false
	}
	if ct.live.Close >= ct.live.Open {
		return true
	}
	if n := len(ct.archive); n > 0 {
		return ct.live.Close >= ct.archive[n-1].Close
	}
	return false
}
