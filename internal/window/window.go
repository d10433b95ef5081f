// Package window implements the per-market sliding trade-event window (C5,
// spec.md §4.4): a bounded append-only FIFO per market with wall-clock
// pruning and 1-minute / 10-minute USD aggregates.
package window

import (
	"sync"
	"time"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

const (
	keepWindow     = 10 * time.Minute
	oneMinute      = 1 * time.Minute
	pruneEveryN    = 128
	defaultIdleTTL = 2 * time.Hour
)

// TradeEvent is one recorded trade (spec.md §3).
type TradeEvent struct {
	Timestamp time.Time
	UsdValue  float64
	IsBuy     bool
	Buyer     string
}

// OneMinuteStats is the §4.4 oneMinute(now) aggregate.
type OneMinuteStats struct {
	TotalUsd     float64
	BuyUsd       float64
	BuyTxs       int
	UniqueBuyers int
}

type marketWindow struct {
	mu             sync.Mutex
	events         []TradeEvent
	sinceLastPrune int
	lastActivity   time.Time
}

// Store is safe for concurrent use across markets; each market's window
// has its own lock, matching the per-market-shard guidance in spec.md §5.
type Store struct {
	mu      sync.RWMutex
	markets map[market.Key]*marketWindow
	idleTTL time.Duration
	now     func() time.Time
}

// New builds an empty Store with the default 2h idle-eviction TTL.
func New() *Store {
	return &Store{
		markets: make(map[market.Key]*marketWindow),
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
}

func (s *Store) windowFor(key market.Key) *marketWindow {
	s.mu.RLock()
	mw, ok := s.markets[key]
	s.mu.RUnlock()
	if ok {
		return mw
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if mw, ok := s.markets[key]; ok {
		return mw
	}
	mw = &marketWindow{lastActivity: s.now()}
	s.markets[key] = mw
	return mw
}

// Record appends ev to key's window, pruning on the batched cadence
// described in spec.md §4.4 (at least every 128 appends).
func (s *Store) Record(key market.Key, ev TradeEvent) {
	mw := s.windowFor(key)
	now := s.now()

	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.events = append(mw.events, ev)
	mw.lastActivity = now
	mw.sinceLastPrune++
	if mw.sinceLastPrune >= pruneEveryN {
		mw.prune(now)
	}
}

// prune drops events older than keepWindow. Caller must hold mw.mu.
func (mw *marketWindow) prune(now time.Time) {
	horizon := now.Add(-keepWindow)
	i := 0
	for i < len(mw.events) && mw.events[i].Timestamp.Before(horizon) {
		i++
	}
	if i > 0 {
		mw.events = append([]TradeEvent(nil), mw.events[i:]...)
	}
	mw.sinceLastPrune = 0
}

// OneMinute computes the oneMinute(now) aggregate for key, per spec.md §4.4.
// Unique buyers are recomputed from scratch every call (spec.md §9 Open
// Question: the rebuild-per-query semantics are the intended, observable
// behavior — no running set is persisted).
func (s *Store) OneMinute(key market.Key) OneMinuteStats {
	mw := s.windowFor(key)
	now := s.now()

	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.prune(now)

	horizon := now.Add(-oneMinute)
	buyers := make(map[string]struct{})
	var stats OneMinuteStats
	for i := len(mw.events) - 1; i >= 0; i-- {
		ev := mw.events[i]
		if ev.Timestamp.Before(horizon) {
			break
		}
		stats.TotalUsd += ev.UsdValue
		if ev.IsBuy {
			stats.BuyUsd += ev.UsdValue
			stats.BuyTxs++
			if ev.Buyer != "" {
				buyers[ev.Buyer] = struct{}{}
			}
		}
	}
	stats.UniqueBuyers = len(buyers)
	return stats
}

// TenMinutesTotal computes tenMinutesTotal(now) for key (spec.md §4.4).
func (s *Store) TenMinutesTotal(key market.Key) float64 {
	mw := s.windowFor(key)
	now := s.now()

	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.prune(now)

	var total float64
	for _, ev := range mw.events {
		total += ev.UsdValue
	}
	return total
}

// BaselineAvgPerMin computes baselineAvgPerMin(now) = max(0, total10m -
// total1m) / 9, per spec.md §4.4. Always >= 0 (spec.md §8 invariant).
func (s *Store) BaselineAvgPerMin(key market.Key) float64 {
	total10m := s.TenMinutesTotal(key)
	total1m := s.OneMinute(key).TotalUsd
	diff := total10m - total1m
	if diff < 0 {
		diff = 0
	}
	return diff / 9
}

// Evict removes key's window entirely. Nothing in the running pipeline
// calls it; the ingress idle sweeper drops Watchlist entries only.
func (s *Store) Evict(key market.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markets, key)
}

// SweepIdle evicts windows with no activity for longer than the idle TTL
// (spec.md §4.4: "Markets with no activity for idleDropMs (default 2h) are
// evicted wholesale"). Returns the evicted keys.
func (s *Store) SweepIdle() []market.Key {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []market.Key
	for k, mw := range s.markets {
		mw.mu.Lock()
		idle := now.Sub(mw.lastActivity)
		mw.mu.Unlock()
		if idle >= s.idleTTL {
			evicted = append(evicted, k)
			delete(s.markets, k)
		}
	}
	return evicted
}
