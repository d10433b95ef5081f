// Package subscriber implements MarketSubscriber (C8, spec.md §4.3): for
// each active market it turns decoded V2/V3 swap and mint events into
// WindowStore records, TaxEstimator samples, and AlertEvaluator requests.
//
// This package holds only the per-trade business logic; installing the
// actual chain log subscriptions and decoding raw logs into the Swap/Mint
// event shapes below is internal/chain's job.
package subscriber

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexsentinel/dexsentinel/internal/alert"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/tax"
	"github.com/dexsentinel/dexsentinel/internal/window"
)

// PriceResolver converts a natural-unit amount of the target token into a
// USD value, preferring the AMM-derived rate and falling back to the
// aggregator spot price (spec.md §4.3 step 4). ok is false when no price
// can be obtained at all, in which case the event must be dropped.
type PriceResolver interface {
	PriceUsd(ctx context.Context, key market.Key, naturalAmount float64) (usd float64, ok bool)
}

// ExpectedOutputResolver computes the mid-price-implied expected output
// for a swap against a base token, used to feed TaxEstimator samples
// (spec.md §4.8).
type ExpectedOutputResolver interface {
	ExpectedOutput(ctx context.Context, key market.Key, naturalAmountIn float64, baseIsToken0 bool) (expected float64, ok bool)
}

// V2SwapEvent is the decoded form of a V2 pair's Swap log.
type V2SwapEvent struct {
	Key                                           market.Key
	Token0, Token1                                string
	Dec0, Dec1                                    int
	Amount0In, Amount1In, Amount0Out, Amount1Out  *big.Int
	Sender, To                                    common.Address
	LiquidityUsd                                  float64
}

// V2MintEvent is the decoded form of a V2 pair's Mint log.
type V2MintEvent struct {
	Key              market.Key
	Token0, Token1   string
	Amount0, Amount1 *big.Int
	Dec0, Dec1       int
}

// V3SwapEvent is the decoded form of a V3 pool's Swap log. Amount0/1 are
// signed: positive means into the pool (trader perspective).
type V3SwapEvent struct {
	Key               market.Key
	Token0, Token1    string
	Dec0, Dec1        int
	Amount0, Amount1  *big.Int
	Sender, Recipient common.Address
	LiquidityUsd      float64
}

// Subscriber ties the WindowStore, TaxEstimator, and AlertEvaluator
// together for one logical stream of trade events (spec.md §9: explicit
// collaborators, constructed once at the composition root and shared by
// every market's watcher).
type Subscriber struct {
	windows  *window.Store
	tax      *tax.Estimator
	eval     *alert.Evaluator
	tokens   *market.BaseTokenTable
	price    PriceResolver
	expected ExpectedOutputResolver
	now      func() time.Time
}

// New builds a Subscriber.
func New(windows *window.Store, taxEstimator *tax.Estimator, evaluator *alert.Evaluator, tokens *market.BaseTokenTable, price PriceResolver, expected ExpectedOutputResolver) *Subscriber {
	return &Subscriber{
		windows:  windows,
		tax:      taxEstimator,
		eval:     evaluator,
		tokens:   tokens,
		price:    price,
		expected: expected,
		now:      time.Now,
	}
}

// targetSide returns which side is the target (the non-base side; if
// both or neither are base, defaults to token0), per spec.md §4.3 step 1.
func (s *Subscriber) targetSide(chain market.Chain, token0, token1 string) (targetIsToken0 bool) {
	isBase0 := s.tokens.IsBaseToken(chain, token0)
	isBase1 := s.tokens.IsBaseToken(chain, token1)
	switch {
	case isBase0 && !isBase1:
		return false
	case isBase1 && !isBase0:
		return true
	default:
		return true // both or neither base: default to token0
	}
}

func normalize(amount *big.Int, dec int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetFloat64(pow10(dec))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// HandleV2Swap implements spec.md §4.3 steps 1-7 for a V2 Swap event.
func (s *Subscriber) HandleV2Swap(ctx context.Context, ev V2SwapEvent) {
	targetIsToken0 := s.targetSide(ev.Key.Chain, ev.Token0, ev.Token1)

	var delta float64
	if targetIsToken0 {
		delta = normalize(ev.Amount0Out, ev.Dec0) - normalize(ev.Amount0In, ev.Dec0)
	} else {
		delta = normalize(ev.Amount1Out, ev.Dec1) - normalize(ev.Amount1In, ev.Dec1)
	}

	isBuy := delta > 0
	buyer := ev.Sender.Hex()
	if isBuy {
		buyer = ev.To.Hex()
	}

	usd, ok := s.price.PriceUsd(ctx, ev.Key, absFloat(delta))
	if !ok {
		return // spec.md §4.3 step 4: drop the event if no price is obtainable
	}

	s.windows.Record(ev.Key, window.TradeEvent{Timestamp: s.now(), UsdValue: usd, IsBuy: isBuy, Buyer: buyer})

	nonTargetIsBase := s.tokens.IsBaseToken(ev.Key.Chain, pick(ev.Token0, ev.Token1, !targetIsToken0))
	if nonTargetIsBase {
		s.recordTax(ctx, ev.Key, targetIsToken0, ev)
	}

	token0, token1 := ev.Token0, ev.Token1
	targetSideName := "token0"
	if !targetIsToken0 {
		targetSideName = "token1"
	}
	s.eval.Process(alert.TradeInput{
		Key:          ev.Key,
		Token0:       token0,
		Token1:       token1,
		TargetSide:   targetSideName,
		LastTradeUsd: usd,
		IsBuy:        isBuy,
		LiquidityUsd: ev.LiquidityUsd,
	})
}

func (s *Subscriber) recordTax(ctx context.Context, key market.Key, targetIsToken0 bool, ev V2SwapEvent) {
	var buyAmountIn, buyAmountOut float64
	if targetIsToken0 {
		buyAmountIn = normalize(ev.Amount1In, ev.Dec1)
		buyAmountOut = normalize(ev.Amount0Out, ev.Dec0)
	} else {
		buyAmountIn = normalize(ev.Amount0In, ev.Dec0)
		buyAmountOut = normalize(ev.Amount1Out, ev.Dec1)
	}
	if buyAmountIn > 0 {
		expected, ok := s.expected.ExpectedOutput(ctx, key, buyAmountIn, !targetIsToken0)
		if ok {
			s.tax.RecordBuy(key, expected, buyAmountOut)
		}
		return
	}

	var sellAmountIn, sellAmountOut float64
	if targetIsToken0 {
		sellAmountIn = normalize(ev.Amount0In, ev.Dec0)
		sellAmountOut = normalize(ev.Amount1Out, ev.Dec1)
	} else {
		sellAmountIn = normalize(ev.Amount1In, ev.Dec1)
		sellAmountOut = normalize(ev.Amount0Out, ev.Dec0)
	}
	if sellAmountIn <= 0 {
		return
	}
	expected, ok := s.expected.ExpectedOutput(ctx, key, sellAmountIn, targetIsToken0)
	if !ok {
		return
	}
	s.tax.RecordSell(key, expected, sellAmountOut)
}

func pick(a, b string, useB bool) string {
	if useB {
		return b
	}
	return a
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// HandleV2Mint records the USD value of added liquidity on the caller's
// behalf (spec.md §4.3: "estimates the USD value of added liquidity...
// stores lastMintUsd on the market's metadata"). The caller is
// responsible for writing the returned value onto the Watchlist entry,
// since Subscriber does not hold a Watchlist reference.
//
// A mint always deposits both sides in proportion to the pool's current
// ratio, so pricing the non-base side alone and doubling it gives the
// full deposit's USD value (spec.md §4.3 step 6).
func (s *Subscriber) HandleV2Mint(ctx context.Context, ev V2MintEvent) (mintUsd float64, ok bool) {
	targetIsToken0 := s.targetSide(ev.Key.Chain, ev.Token0, ev.Token1)

	amount := normalize(ev.Amount1, ev.Dec1)
	if targetIsToken0 {
		amount = normalize(ev.Amount0, ev.Dec0)
	}

	usd, ok := s.price.PriceUsd(ctx, ev.Key, amount)
	if !ok {
		return 0, false
	}
	return 2 * usd, true
}

// HandleV3Swap handles a V3 Swap event the way HandleV2Swap handles a V2
// one (spec.md §4.3), except that it records no TaxEstimator samples.
func (s *Subscriber) HandleV3Swap(ctx context.Context, ev V3SwapEvent) {
	targetIsToken0 := s.targetSide(ev.Key.Chain, ev.Token0, ev.Token1)

	var targetAmount *big.Int
	var targetDec int
	if targetIsToken0 {
		targetAmount = ev.Amount0
		targetDec = ev.Dec0
	} else {
		targetAmount = ev.Amount1
		targetDec = ev.Dec1
	}
	delta := -normalize(targetAmount, targetDec)

	isBuy := delta > 0
	buyer := ev.Sender.Hex()
	if isBuy {
		buyer = ev.Recipient.Hex()
	}

	usd, ok := s.price.PriceUsd(ctx, ev.Key, absFloat(delta))
	if !ok {
		return
	}

	s.windows.Record(ev.Key, window.TradeEvent{Timestamp: s.now(), UsdValue: usd, IsBuy: isBuy, Buyer: buyer})

	targetSideName := "token0"
	if !targetIsToken0 {
		targetSideName = "token1"
	}
	s.eval.Process(alert.TradeInput{
		Key:          ev.Key,
		Token0:       ev.Token0,
		Token1:       ev.Token1,
		TargetSide:   targetSideName,
		LastTradeUsd: usd,
		IsBuy:        isBuy,
		LiquidityUsd: ev.LiquidityUsd,
	})
}
