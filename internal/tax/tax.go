// Package tax implements the rolling buy/sell effective-fee estimator (C7,
// spec.md §4.8): for a swap against a base token it compares the pool's
// mid-price-implied output to the realized output and records the
// implied tax, retaining a 10-minute rolling window per market.
//
// Only the decimal-normalized sample variant is implemented (spec.md §9
// Open Questions: the source's raw-integer variant is not semantically
// correct and is dropped).
package tax

import (
	"sync"
	"time"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

const retainFor = 10 * time.Minute

const epsilon = 1e-12

type sample struct {
	at  time.Time
	pct float64
}

type series struct {
	mu    sync.Mutex
	buys  []sample
	sells []sample
}

// Estimator is safe for concurrent use across markets.
type Estimator struct {
	mu    sync.RWMutex
	byKey map[market.Key]*series
	now   func() time.Time
}

// New builds an empty Estimator.
func New() *Estimator {
	return &Estimator{
		byKey: make(map[market.Key]*series),
		now:   time.Now,
	}
}

func (e *Estimator) seriesFor(key market.Key) *series {
	e.mu.RLock()
	s, ok := e.byKey[key]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.byKey[key]; ok {
		return s
	}
	s = &series{}
	e.byKey[key] = s
	return s
}

func prune(samples []sample, now time.Time) []sample {
	horizon := now.Add(-retainFor)
	i := 0
	for i < len(samples) && samples[i].at.Before(horizon) {
		i++
	}
	if i == 0 {
		return samples
	}
	return append([]sample(nil), samples[i:]...)
}

// EffectiveTax computes clamp(0, 1, 1 - observed/max(expected, eps)), the
// per-swap implied tax described in spec.md §4.8. expected and observed
// must already be decimal-normalized (divided by 10^decimals).
func EffectiveTax(expected, observed float64) float64 {
	denom := expected
	if denom < epsilon {
		denom = epsilon
	}
	t := 1 - observed/denom
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// RecordBuy appends a buy-tax sample for key.
func (e *Estimator) RecordBuy(key market.Key, expected, observed float64) {
	e.record(key, true, EffectiveTax(expected, observed))
}

// RecordSell appends a sell-tax sample for key.
func (e *Estimator) RecordSell(key market.Key, expected, observed float64) {
	e.record(key, false, EffectiveTax(expected, observed))
}

func (e *Estimator) record(key market.Key, isBuy bool, pct float64) {
	s := e.seriesFor(key)
	now := e.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buys = prune(s.buys, now)
	s.sells = prune(s.sells, now)
	smp := sample{at: now, pct: pct}
	if isBuy {
		s.buys = append(s.buys, smp)
	} else {
		s.sells = append(s.sells, smp)
	}
}

// Avg is the arithmetic mean of the buy and sell tax series over the
// retained window, per getAvg(chain, type, addr) (spec.md §4.8). ok is
// false when a series has no samples yet — callers must not block the
// Gate Pipeline on the first sighting (spec.md §4.8: "never blocking on
// first sight").
type Avg struct {
	Buy    float64
	BuyOK  bool
	Sell   float64
	SellOK bool
}

// GetAvg returns the current averages for key.
func (e *Estimator) GetAvg(key market.Key) Avg {
	s := e.seriesFor(key)
	now := e.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buys = prune(s.buys, now)
	s.sells = prune(s.sells, now)

	var out Avg
	if len(s.buys) > 0 {
		out.Buy = mean(s.buys)
		out.BuyOK = true
	}
	if len(s.sells) > 0 {
		out.Sell = mean(s.sells)
		out.SellOK = true
	}
	return out
}

func mean(samples []sample) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.pct
	}
	return sum / float64(len(samples))
}

// Evict drops all retained samples for key. Nothing in the running
// pipeline calls it; the ingress idle sweeper drops Watchlist entries only.
func (e *Estimator) Evict(key market.Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byKey, key)
}
