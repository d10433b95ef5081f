// Package oracle implements PriceOracle (C1) and the USD-derivation half
// of ReservesPricer (C2), spec.md §4.5-§4.6: base-token USD pricing with
// a 30s TTL cache, relative-price-to-USD conversion, and decimals caching
// with singleflight-collapsed lookups.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dexsentinel/dexsentinel/internal/aggregator"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/pkg/amm"
)

const priceTTL = 30 * time.Second

var stableFallback = map[string]float64{
	"USDT": 1.00,
	"USDC": 1.00,
	"BUSD": 1.00,
	"DAI":  1.00,
}

// Aggregator is the subset of aggregator.Client PriceOracle depends on,
// kept as an interface so tests can substitute a fake.
type Aggregator interface {
	TokenPairs(ctx context.Context, token string) ([]aggregator.Pair, error)
}

type priceCacheEntry struct {
	price    float64
	cachedAt time.Time
}

// Oracle is an explicit collaborator (spec.md §9): constructed once at the
// composition root and passed into every component that needs USD prices.
type Oracle struct {
	agg    Aggregator
	tokens *market.BaseTokenTable

	mu    sync.Mutex
	cache map[market.Key]priceCacheEntry

	sf  singleflight.Group
	now func() time.Time
}

// New builds an Oracle backed by agg and the recognized base-token table.
func New(agg Aggregator, tokens *market.BaseTokenTable) *Oracle {
	return &Oracle{
		agg:    agg,
		tokens: tokens,
		cache:  make(map[market.Key]priceCacheEntry),
		now:    time.Now,
	}
}

func cacheKey(chain market.Chain, token string) market.Key {
	return market.NewKey(chain, "usd", token)
}

// GetBaseTokenUsd returns a USD price for a recognized base token
// (spec.md §4.6): external aggregator first, stablecoin 1.00 fallback
// when the aggregator has no usable entry. Results are cached 30s.
func (o *Oracle) GetBaseTokenUsd(ctx context.Context, chain market.Chain, token string) (float64, error) {
	bt, recognized := o.tokens.Lookup(chain, token)
	if !recognized {
		return 0, fmt.Errorf("oracle: %s is not a recognized base token on %s", token, chain)
	}

	key := cacheKey(chain, token)
	if p, ok := o.cached(key); ok {
		return p, nil
	}

	v, err, _ := o.sf.Do(key.String(), func() (interface{}, error) {
		price, err := o.lookupAggregatorUsd(ctx, chain, token)
		if err != nil {
			if fallback, ok := stableFallback[bt.Symbol]; ok {
				return fallback, nil
			}
			return 0.0, err
		}
		return price, nil
	})
	if err != nil {
		return 0, err
	}
	price := v.(float64)
	o.store(key, price)
	return price, nil
}

// FetchTokenUsd is like GetBaseTokenUsd but returns ok=false (rather than
// an error) for non-base tokens with no aggregator entry, per spec.md
// §4.6: "returns none for non-base tokens when no aggregator entry
// exists".
func (o *Oracle) FetchTokenUsd(ctx context.Context, chain market.Chain, token string) (price float64, ok bool) {
	if o.tokens.IsBaseToken(chain, token) {
		p, err := o.GetBaseTokenUsd(ctx, chain, token)
		return p, err == nil
	}

	key := cacheKey(chain, token)
	if p, cached := o.cached(key); cached {
		return p, true
	}

	v, err, _ := o.sf.Do(key.String(), func() (interface{}, error) {
		return o.lookupAggregatorUsd(ctx, chain, token)
	})
	if err != nil {
		return 0, false
	}
	price = v.(float64)
	o.store(key, price)
	return price, true
}

func (o *Oracle) lookupAggregatorUsd(ctx context.Context, chain market.Chain, token string) (float64, error) {
	pairs, err := o.agg.TokenPairs(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("oracle: aggregator lookup for %s: %w", token, err)
	}

	var best aggregator.Pair
	var bestLiq float64 = -1
	for _, p := range pairs {
		if !chainMatches(chain, p.ChainID) {
			continue
		}
		if p.LiquidityUsd > bestLiq && p.PriceUsd > 0 {
			best = p
			bestLiq = p.LiquidityUsd
		}
	}
	if bestLiq < 0 {
		return 0, fmt.Errorf("oracle: no aggregator pair for %s on %s", token, chain)
	}
	return best.PriceUsd, nil
}

func chainMatches(chain market.Chain, aggChainID string) bool {
	switch chain {
	case market.ChainBSC:
		return aggChainID == "bsc"
	case market.ChainETH:
		return aggChainID == "ethereum" || aggChainID == "eth"
	default:
		return false
	}
}

func (o *Oracle) cached(key market.Key) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.cache[key]
	if !ok || o.now().Sub(e.cachedAt) > priceTTL {
		return 0, false
	}
	return e.price, true
}

func (o *Oracle) store(key market.Key, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[key] = priceCacheEntry{price: price, cachedAt: o.now()}
}

// decimalsCacheEntry and the decimals cache below implement spec.md
// §4.5's "decimals are cached per (chain_id, token); on lookup failure,
// fall back to 18", collapsing concurrent lookups of the same token with
// singleflight (spec.md §5 caches use read-through semantics).
type DecimalsCache struct {
	mu    sync.Mutex
	cache map[market.Key]int
	sf    singleflight.Group
}

// NewDecimalsCache builds an empty decimals cache.
func NewDecimalsCache() *DecimalsCache {
	return &DecimalsCache{cache: make(map[market.Key]int)}
}

// Get returns the cached decimals for (chain, token), calling fetch on a
// cache miss. Concurrent misses for the same token collapse into one
// underlying RPC call.
func (d *DecimalsCache) Get(ctx context.Context, chain market.Chain, token string, fetch func(context.Context) int) int {
	key := cacheKey(chain, token)

	d.mu.Lock()
	if v, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return v
	}
	d.mu.Unlock()

	v, _, _ := d.sf.Do(key.String(), func() (interface{}, error) {
		dec := fetch(ctx)
		d.mu.Lock()
		d.cache[key] = dec
		d.mu.Unlock()
		return dec, nil
	})
	return v.(int)
}

// ReservesUSD derives USD prices for both sides of a V2 pool from raw
// reserves, decimals, and known base-token USD prices, per spec.md §4.5
// ("If both sides have base-token prices, prefer the side whose base
// token is higher-priority").
func (o *Oracle) ReservesUSD(ctx context.Context, chain market.Chain, token0, token1 string, r0, r1 *big.Int, dec0, dec1 int) (usd0, usd1 float64, ok bool) {
	p0in1, p1in0, err := amm.V2RelativePrice(r0, r1, dec0, dec1)
	if err != nil {
		return 0, 0, false
	}
	return o.deriveFromRelative(chain, token0, token1, p0in1, p1in0)
}

// V3USD derives USD prices for both sides of a V3 pool from sqrtPriceX96.
func (o *Oracle) V3USD(ctx context.Context, chain market.Chain, token0, token1 string, sqrtPriceX96 *big.Int, dec0, dec1 int) (usd0, usd1 float64, ok bool) {
	p1in0Big, err := amm.V3RelativePrice(sqrtPriceX96, dec0, dec1)
	if err != nil {
		return 0, 0, false
	}
	p1in0 := amm.ToFloat64(p1in0Big)
	if p1in0 <= 0 {
		return 0, 0, false
	}
	p0in1 := 1 / p1in0
	return o.deriveFromRelative(chain, token0, token1, big.NewFloat(p0in1), big.NewFloat(p1in0))
}

func (o *Oracle) deriveFromRelative(chain market.Chain, token0, token1 string, p0in1, p1in0 *big.Float) (usd0, usd1 float64, ok bool) {
	bt0, isBase0 := o.tokens.Lookup(chain, token0)
	bt1, isBase1 := o.tokens.Lookup(chain, token1)

	switch {
	case isBase0 && isBase1:
		// Prefer the higher-priority (lower Priority value) side as the
		// anchor, per spec.md §4.5.
		if bt0.Priority <= bt1.Priority {
			u0, err := o.GetBaseTokenUsd(context.Background(), chain, token0)
			if err != nil {
				return 0, 0, false
			}
			return u0, u0 * amm.ToFloat64(p1in0), true
		}
		u1, err := o.GetBaseTokenUsd(context.Background(), chain, token1)
		if err != nil {
			return 0, 0, false
		}
		return u1 * amm.ToFloat64(p0in1), u1, true
	case isBase0:
		u0, err := o.GetBaseTokenUsd(context.Background(), chain, token0)
		if err != nil {
			return 0, 0, false
		}
		return u0, u0 * amm.ToFloat64(p1in0), true
	case isBase1:
		u1, err := o.GetBaseTokenUsd(context.Background(), chain, token1)
		if err != nil {
			return 0, 0, false
		}
		return u1 * amm.ToFloat64(p0in1), u1, true
	default:
		return 0, 0, false
	}
}
