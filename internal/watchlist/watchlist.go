// Package watchlist implements the per-market lifecycle registry (spec.md
// §3, §4.2, C4). It is the sole owner of Market records; every other
// component holds only a market.Key and asks the Watchlist for current
// state (spec.md §9: arena+key, not a pointer graph).
package watchlist

import (
	"sync"
	"time"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

const (
	activeIdleTTL    = 24 * time.Hour
	nonActiveIdleTTL = 1 * time.Hour
)

// entry bundles a Market with its own mutex so that per-market mutation
// never contends with unrelated markets (spec.md §5: "per-market lock or
// shard to avoid cross-market contention").
type entry struct {
	mu sync.Mutex
	m  market.Market
}

// Watchlist is safe for concurrent use by many goroutines.
type Watchlist struct {
	mu      sync.RWMutex
	entries map[market.Key]*entry
	now     func() time.Time
}

// New builds an empty Watchlist.
func New() *Watchlist {
	return &Watchlist{
		entries: make(map[market.Key]*entry),
		now:     time.Now,
	}
}

// Register idempotently inserts a pending market for candidate. If the key
// already exists the call is a no-op and returns false — this is how the
// spec's "duplicates from reorg are tolerated downstream by Watchlist's
// idempotent insert" (spec.md §4.1) and trending dedup's 6-minute
// re-entry ("no-op if already in Watchlist", spec.md §8 scenario 5) are
// satisfied.
func (w *Watchlist) Register(c market.Candidate) (market.Market, bool) {
	key := c.Key()

	w.mu.RLock()
	e, ok := w.entries[key]
	w.mu.RUnlock()
	if ok {
		e.mu.Lock()
		m := e.m
		e.mu.Unlock()
		return m, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[key]; ok {
		e.mu.Lock()
		m := e.m
		e.mu.Unlock()
		return m, false
	}

	now := w.now()
	m := market.Market{
		Key:         key,
		Token0:      c.Token0,
		Token1:      c.Token1,
		Fee:         c.Fee,
		Status:      market.StatusPending,
		FirstSeen:   now,
		LastUpdated: now,
		Meta: market.Metadata{
			LiquidityUsd: c.LiquidityUsdHint,
		},
	}
	w.entries[key] = &entry{m: m}
	return m, true
}

// Get returns the current Market for key.
func (w *Watchlist) Get(key market.Key) (market.Market, bool) {
	w.mu.RLock()
	e, ok := w.entries[key]
	w.mu.RUnlock()
	if !ok {
		return market.Market{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m, true
}

// Activate transitions key from pending to active, recording liquidityUsd.
// No-op (returns false) if the entry is missing or already terminal,
// enforcing spec.md §3's "active/rejected are terminal" invariant.
func (w *Watchlist) Activate(key market.Key, liquidityUsd float64) bool {
	w.mu.RLock()
	e, ok := w.entries[key]
	w.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m.Status != market.StatusPending {
		return false
	}
	e.m.Status = market.StatusActive
	e.m.Meta.LiquidityUsd = liquidityUsd
	e.m.LastUpdated = w.now()
	return true
}

// Reject transitions key from pending to rejected with reason. No-op if
// the entry is missing or already terminal.
func (w *Watchlist) Reject(key market.Key, reason string) bool {
	w.mu.RLock()
	e, ok := w.entries[key]
	w.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m.Status != market.StatusPending {
		return false
	}
	e.m.Status = market.StatusRejected
	e.m.Reason = reason
	e.m.LastUpdated = w.now()
	return true
}

// UpdateMeta applies fn to key's metadata under the entry's own lock and
// bumps LastUpdated. No-op if the entry is missing.
func (w *Watchlist) UpdateMeta(key market.Key, fn func(*market.Metadata)) bool {
	w.mu.RLock()
	e, ok := w.entries[key]
	w.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.m.Meta)
	e.m.LastUpdated = w.now()
	return true
}

// Active returns a snapshot of every currently-active market key.
func (w *Watchlist) Active() []market.Key {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []market.Key
	for k, e := range w.entries {
		e.mu.Lock()
		st := e.m.Status
		e.mu.Unlock()
		if st == market.StatusActive {
			out = append(out, k)
		}
	}
	return out
}

// SweepIdle evicts markets idle longer than their status-specific TTL
// (spec.md §3: active markets expire 24h after last update; non-active
// expire 1h after last update). Returns the evicted keys so callers (the
// slot reaper) can release any associated subscription slot.
func (w *Watchlist) SweepIdle() []market.Key {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	var evicted []market.Key
	for k, e := range w.entries {
		e.mu.Lock()
		idle := now.Sub(e.m.LastUpdated)
		ttl := nonActiveIdleTTL
		if e.m.Status == market.StatusActive {
			ttl = activeIdleTTL
		}
		expired := idle >= ttl
		e.mu.Unlock()
		if expired {
			evicted = append(evicted, k)
			delete(w.entries, k)
		}
	}
	return evicted
}

// Len returns the number of tracked entries, mainly for metrics/tests.
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}
