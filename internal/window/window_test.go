package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

func testKey() market.Key {
	return market.NewKey(market.ChainBSC, market.V2, "0xAAAA000000000000000000000000000000AAAA")
}

func TestOneMinuteAggregatesBuysOnly(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	k := testKey()

	s.Record(k, TradeEvent{Timestamp: base, UsdValue: 100, IsBuy: true, Buyer: "alice"})
	s.Record(k, TradeEvent{Timestamp: base, UsdValue: 50, IsBuy: false})
	s.Record(k, TradeEvent{Timestamp: base, UsdValue: 25, IsBuy: true, Buyer: "bob"})

	stats := s.OneMinute(k)
	assert.Equal(t, 175.0, stats.TotalUsd)
	assert.Equal(t, 125.0, stats.BuyUsd)
	assert.Equal(t, 2, stats.BuyTxs)
	assert.Equal(t, 2, stats.UniqueBuyers)
}

func TestWindowFreshnessInvariant(t *testing.T) {
	// No returned event has ts < now - 10min (spec.md §8).
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	k := testKey()

	s.Record(k, TradeEvent{Timestamp: base.Add(-9 * time.Minute), UsdValue: 10, IsBuy: true, Buyer: "old"})

	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	total := s.TenMinutesTotal(k)
	assert.Equal(t, 0.0, total)
}

func TestBaselineAvgPerMinNonNegativeAndFormula(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	k := testKey()

	// Spread volume: 90 total over 10m, 10 of it within the last 1m.
	s.Record(k, TradeEvent{Timestamp: base.Add(-9 * time.Minute), UsdValue: 80, IsBuy: true, Buyer: "a"})
	s.Record(k, TradeEvent{Timestamp: base, UsdValue: 10, IsBuy: true, Buyer: "b"})

	baseline := s.BaselineAvgPerMin(k)
	// max(0, 90-10)/9 == 80/9
	assert.InDelta(t, 80.0/9.0, baseline, 0.0001)
	assert.GreaterOrEqual(t, baseline, 0.0)
}

func TestBaselineClampsToZeroWhenAllVolumeRecent(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	k := testKey()

	s.Record(k, TradeEvent{Timestamp: base, UsdValue: 500, IsBuy: true, Buyer: "a"})

	baseline := s.BaselineAvgPerMin(k)
	assert.Equal(t, 0.0, baseline)
}

func TestSweepIdleEvictsInactiveMarkets(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	k := testKey()
	s.Record(k, TradeEvent{Timestamp: base, UsdValue: 1, IsBuy: true, Buyer: "a"})

	s.now = func() time.Time { return base.Add(3 * time.Hour) }
	evicted := s.SweepIdle()
	assert.Contains(t, evicted, k)
}

func TestSweepIdleKeepsActiveMarkets(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	k := testKey()
	s.Record(k, TradeEvent{Timestamp: base, UsdValue: 1, IsBuy: true, Buyer: "a"})

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	evicted := s.SweepIdle()
	assert.NotContains(t, evicted, k)
}
