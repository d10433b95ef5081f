package tax

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

func testKey() market.Key {
	return market.NewKey(market.ChainBSC, market.V2, "0xbeef000000000000000000000000000000beef")
}

func TestEffectiveTaxClampsToRange(t *testing.T) {
	assert.Equal(t, 0.0, EffectiveTax(100, 120))   // observed > expected: no negative tax
	assert.InDelta(t, 0.1, EffectiveTax(100, 90), 0.0001)
	assert.Equal(t, 1.0, EffectiveTax(100, -50)) // absurd observed clamps to 1
}

func TestGetAvgNotOKBeforeFirstSample(t *testing.T) {
	e := New()
	avg := e.GetAvg(testKey())
	assert.False(t, avg.BuyOK)
	assert.False(t, avg.SellOK)
}

func TestRecordBuyAndSellAverages(t *testing.T) {
	e := New()
	k := testKey()

	e.RecordBuy(k, 100, 95) // tax 0.05
	e.RecordBuy(k, 100, 90) // tax 0.10
	e.RecordSell(k, 100, 80) // tax 0.20

	avg := e.GetAvg(k)
	assert.True(t, avg.BuyOK)
	assert.InDelta(t, 0.075, avg.Buy, 0.0001)
	assert.True(t, avg.SellOK)
	assert.InDelta(t, 0.20, avg.Sell, 0.0001)
}

func TestSamplesOlderThanTenMinutesArePruned(t *testing.T) {
	e := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	k := testKey()

	e.RecordBuy(k, 100, 90)

	e.now = func() time.Time { return base.Add(11 * time.Minute) }
	avg := e.GetAvg(k)
	assert.False(t, avg.BuyOK)
}
