package oracle

import (
	"context"
	"math/big"

	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/pkg/amm"
)

// ChainReader is the narrowed on-chain read surface ReservesPricer needs
// per market (spec.md §4.5): live V2 reserves, live V3 sqrtPriceX96, and
// a token's decimals on a cache miss.
type ChainReader interface {
	V2Reserves(ctx context.Context, key market.Key) (r0, r1 *big.Int, err error)
	V3SqrtPriceX96(ctx context.Context, key market.Key) (sqrtPriceX96 *big.Int, err error)
	TokenDecimals(ctx context.Context, chain market.Chain, token string) (int, error)
}

// MarketLookup is the narrowed Watchlist read surface ReservesPricer
// needs — just enough to recover a market's token addresses from its
// Key.
type MarketLookup interface {
	Get(key market.Key) (market.Market, bool)
}

// ReservesPricer implements subscriber.PriceResolver and
// subscriber.ExpectedOutputResolver (C2, spec.md §4.5): it converts a
// market's live AMM reserves into a USD price via PriceOracle, falling
// back to the aggregator's last known spot price whenever a live chain
// read fails, and separately derives a swap's mid-price-implied expected
// output for TaxEstimator, which has no fallback (ok is false when the
// chain read fails).
type ReservesPricer struct {
	oracle   *Oracle
	wl       MarketLookup
	reader   ChainReader
	tokens   *market.BaseTokenTable
	decimals *DecimalsCache
}

// NewReservesPricer builds a ReservesPricer.
func NewReservesPricer(oracle *Oracle, wl MarketLookup, reader ChainReader, tokens *market.BaseTokenTable) *ReservesPricer {
	return &ReservesPricer{oracle: oracle, wl: wl, reader: reader, tokens: tokens, decimals: NewDecimalsCache()}
}

func (p *ReservesPricer) decimalsFor(ctx context.Context, chain market.Chain, token string) int {
	return p.decimals.Get(ctx, chain, token, func(ctx context.Context) int {
		d, err := p.reader.TokenDecimals(ctx, chain, token)
		if err != nil {
			return 18
		}
		return d
	})
}

// targetIsToken0 reports whether token0 is the non-base/target side, per
// spec.md §4.3's "non-base side" convention — mirrors
// subscriber.targetSide exactly (defaults to token0 when neither or both
// sides are recognized base tokens), computed live from the
// BaseTokenTable rather than cached on the Market record.
func (p *ReservesPricer) targetIsToken0(chain market.Chain, token0, token1 string) bool {
	isBase0 := p.tokens.IsBaseToken(chain, token0)
	isBase1 := p.tokens.IsBaseToken(chain, token1)
	switch {
	case isBase0 && !isBase1:
		return false
	case isBase1 && !isBase0:
		return true
	default:
		return true // both or neither base: default to token0
	}
}

// PriceUsd implements subscriber.PriceResolver: naturalAmount is the
// quantity of the market's non-base side moved by the triggering trade.
func (p *ReservesPricer) PriceUsd(ctx context.Context, key market.Key, naturalAmount float64) (float64, bool) {
	m, found := p.wl.Get(key)
	if !found {
		return 0, false
	}

	dec0 := p.decimalsFor(ctx, key.Chain, m.Token0)
	dec1 := p.decimalsFor(ctx, key.Chain, m.Token1)

	var usd0, usd1 float64
	var ok bool
	if key.Type == market.V2 {
		r0, r1, err := p.reader.V2Reserves(ctx, key)
		if err == nil {
			usd0, usd1, ok = p.oracle.ReservesUSD(ctx, key.Chain, m.Token0, m.Token1, r0, r1, dec0, dec1)
		}
	} else {
		sp, err := p.reader.V3SqrtPriceX96(ctx, key)
		if err == nil {
			usd0, usd1, ok = p.oracle.V3USD(ctx, key.Chain, m.Token0, m.Token1, sp, dec0, dec1)
		}
	}

	targetIsToken0 := p.targetIsToken0(key.Chain, m.Token0, m.Token1)
	target := m.Token0
	if !targetIsToken0 {
		target = m.Token1
	}

	if !ok {
		return p.aggregatorFallback(ctx, key.Chain, target, naturalAmount)
	}

	targetUsd := usd0
	if !targetIsToken0 {
		targetUsd = usd1
	}
	if targetUsd <= 0 {
		return p.aggregatorFallback(ctx, key.Chain, target, naturalAmount)
	}
	return naturalAmount * targetUsd, true
}

func (p *ReservesPricer) aggregatorFallback(ctx context.Context, chain market.Chain, token string, naturalAmount float64) (float64, bool) {
	price, ok := p.oracle.FetchTokenUsd(ctx, chain, token)
	if !ok || price <= 0 {
		return 0, false
	}
	return naturalAmount * price, true
}

// ExpectedOutput implements subscriber.ExpectedOutputResolver (spec.md
// §4.8): converts naturalAmountIn (on the side named by baseIsToken0)
// into the opposite side's mid-price-implied output.
func (p *ReservesPricer) ExpectedOutput(ctx context.Context, key market.Key, naturalAmountIn float64, baseIsToken0 bool) (float64, bool) {
	m, found := p.wl.Get(key)
	if !found {
		return 0, false
	}
	dec0 := p.decimalsFor(ctx, key.Chain, m.Token0)
	dec1 := p.decimalsFor(ctx, key.Chain, m.Token1)

	var p0in1, p1in0 float64
	if key.Type == market.V2 {
		r0, r1, err := p.reader.V2Reserves(ctx, key)
		if err != nil {
			return 0, false
		}
		f0in1, f1in0, err := amm.V2RelativePrice(r0, r1, dec0, dec1)
		if err != nil {
			return 0, false
		}
		p0in1, p1in0 = amm.ToFloat64(f0in1), amm.ToFloat64(f1in0)
	} else {
		sp, err := p.reader.V3SqrtPriceX96(ctx, key)
		if err != nil {
			return 0, false
		}
		f1in0, err := amm.V3RelativePrice(sp, dec0, dec1)
		if err != nil {
			return 0, false
		}
		p1in0 = amm.ToFloat64(f1in0)
		if p1in0 <= 0 {
			return 0, false
		}
		p0in1 = 1 / p1in0
	}

	if baseIsToken0 {
		if p0in1 <= 0 {
			return 0, false
		}
		return naturalAmountIn * p0in1, true
	}
	if p1in0 <= 0 {
		return 0, false
	}
	return naturalAmountIn * p1in0, true
}
