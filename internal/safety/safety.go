// Package safety implements the Gate Pipeline's individual checks (C3,
// spec.md §4.2): bytecode presence, minimum liquidity, sellability,
// LP-risk scoring, and the tax-sample gate. Each check returns a Result
// the Gate Pipeline uses to short-circuit and record a rejection reason.
package safety

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/tax"
)

// Result is one check's verdict. A failing Result always carries a
// human-readable Reason (spec.md §4.2: "records a machine-readable
// reason").
type Result struct {
	Pass   bool
	Reason string
}

func pass() Result               { return Result{Pass: true} }
func fail(reason string) Result  { return Result{Pass: false, Reason: reason} }
func failf(format string, args ...interface{}) Result {
	return Result{Pass: false, Reason: fmt.Sprintf(format, args...)}
}

// CodeChecker reports whether an address carries non-empty bytecode.
type CodeChecker func(ctx context.Context, address common.Address) (bool, error)

// RouterQuerier is the V2 router's getAmountsOut, used for sellability.
type RouterQuerier func(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)

// V3PoolResolver checks a pool's canonical factory address for
// sellability step 1 of the V3 branch.
type V3PoolResolver func(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)

// V3Quoter is the V3 quoter's quoteExactInputSingle.
type V3Quoter func(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)

const (
	defaultMinLiqUsd = 5000.0
	defaultMaxTaxPct = 0.20
)

// Probes bundles the thresholds and the recognized base-token table
// shared across checks (spec.md §9: explicit collaborator, constructed
// once at the composition root).
type Probes struct {
	Tokens    *market.BaseTokenTable
	MinLiqUsd float64
	MaxTaxPct float64
}

// New builds Probes with the spec's documented defaults; override
// MinLiqUsd/MaxTaxPct after construction from configuration.
func New(tokens *market.BaseTokenTable) *Probes {
	return &Probes{Tokens: tokens, MinLiqUsd: defaultMinLiqUsd, MaxTaxPct: defaultMaxTaxPct}
}

// BytecodePresence is check 1: pair/pool, token0, token1 must all carry
// non-empty on-chain code.
func (p *Probes) BytecodePresence(ctx context.Context, hasCode CodeChecker, addrs ...common.Address) Result {
	for _, addr := range addrs {
		ok, err := hasCode(ctx, addr)
		if err != nil {
			return failf("fail: bytecode check errored for %s: %v", addr.Hex(), err)
		}
		if !ok {
			return failf("fail: no bytecode at %s", addr.Hex())
		}
	}
	return pass()
}

// LiquidityResult carries the observed USD liquidity alongside the
// check's pass/fail verdict, since the Gate Pipeline records it on
// success (spec.md §4.2: "active with observed liquidityUsd recorded").
type LiquidityResult struct {
	Result
	LiquidityUsd float64
}

// MinLiquidityV2 is check 2's V2 branch: if either side is a recognized
// base token with a known USD price, USD liquidity is approximated as
// 2x that side's reserve value; otherwise falls back to the aggregator's
// reported liquidity.
func (p *Probes) MinLiquidityV2(chain market.Chain, token0, token1 string, reservesUsd0, reservesUsd1 float64, haveReservesUsd bool, aggregatorLiquidityUsd float64) LiquidityResult {
	var liq float64
	if haveReservesUsd {
		_, base0 := p.Tokens.Lookup(chain, token0)
		_, base1 := p.Tokens.Lookup(chain, token1)
		switch {
		case base0:
			liq = 2 * reservesUsd0
		case base1:
			liq = 2 * reservesUsd1
		default:
			liq = aggregatorLiquidityUsd
		}
	} else {
		liq = aggregatorLiquidityUsd
	}

	if liq < p.MinLiqUsd {
		return LiquidityResult{Result: failf("fail: liquidity %.2f below minimum %.2f", liq, p.MinLiqUsd), LiquidityUsd: liq}
	}
	return LiquidityResult{Result: pass(), LiquidityUsd: liq}
}

// MinLiquidityV3 is check 2's V3 branch: always the aggregator-reported
// value (spec.md §4.2).
func (p *Probes) MinLiquidityV3(aggregatorLiquidityUsd float64) LiquidityResult {
	if aggregatorLiquidityUsd < p.MinLiqUsd {
		return LiquidityResult{Result: failf("fail: liquidity %.2f below minimum %.2f", aggregatorLiquidityUsd, p.MinLiqUsd)}
	}
	return LiquidityResult{Result: pass(), LiquidityUsd: aggregatorLiquidityUsd}
}

// probeAmount is 10^max(0, decimals-6), floor 1, per spec.md §4.2 step 3.
func probeAmount(decimals int) *big.Int {
	exp := decimals - 6
	if exp < 0 {
		exp = 0
	}
	amt := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	if amt.Sign() <= 0 {
		return big.NewInt(1)
	}
	return amt
}

// SellabilityV2 attempts getAmountsOut over 1-hop and 2-hop paths from
// target to each base token (and through each base token as a
// mid-hop), in base-token priority order, per spec.md §4.2 step 3.
// Passes if any path returns a strictly positive output.
func (p *Probes) SellabilityV2(ctx context.Context, chain market.Chain, target common.Address, targetDecimals int, query RouterQuerier) Result {
	bases := p.Tokens.For(chain)
	probe := probeAmount(targetDecimals)

	var lastErr error
	for _, b := range bases {
		baseAddr := common.HexToAddress(b.Address)
		if ok, err := positiveOutput(ctx, query, probe, []common.Address{target, baseAddr}); err != nil {
			lastErr = err
		} else if ok {
			return pass()
		}
	}
	for _, mid := range bases {
		for _, dst := range bases {
			if mid.Address == dst.Address {
				continue
			}
			path := []common.Address{target, common.HexToAddress(mid.Address), common.HexToAddress(dst.Address)}
			if ok, err := positiveOutput(ctx, query, probe, path); err != nil {
				lastErr = err
			} else if ok {
				return pass()
			}
		}
	}
	if lastErr != nil {
		return failf("fail: sellability v2: no static route found (last error: %v)", lastErr)
	}
	return fail("fail: sellability v2: no static route found")
}

func positiveOutput(ctx context.Context, query RouterQuerier, amountIn *big.Int, path []common.Address) (bool, error) {
	amounts, err := query(ctx, amountIn, path)
	if err != nil {
		return false, err
	}
	if len(amounts) == 0 {
		return false, nil
	}
	out := amounts[len(amounts)-1]
	return out != nil && out.Sign() > 0, nil
}

// SellabilityV3 verifies the canonical pool address and probes the
// quoter at {1,10,100} x the base probe amount, per spec.md §4.2 step 3.
func (p *Probes) SellabilityV3(ctx context.Context, chain market.Chain, observedPool, token0, token1 common.Address, fee uint32, target common.Address, targetDecimals int, resolvePool V3PoolResolver, quote V3Quoter) Result {
	canonical, err := resolvePool(ctx, token0, token1, fee)
	if err != nil {
		return failf("fail: sellability v3: getPool errored: %v", err)
	}
	if canonical != observedPool {
		return failf("fail: sellability v3: getPool mismatch (want %s, got %s)", observedPool.Hex(), canonical.Hex())
	}

	var baseInPool common.Address
	found := false
	for _, side := range []common.Address{token0, token1} {
		if side == target {
			continue
		}
		if p.Tokens.IsBaseToken(chain, side.Hex()) {
			baseInPool = side
			found = true
			break
		}
	}
	if !found {
		return fail("fail: sellability v3: neither side is a recognized base token")
	}

	base := probeAmount(targetDecimals)
	var lastErr error
	for _, mult := range []int64{1, 10, 100} {
		amountIn := new(big.Int).Mul(base, big.NewInt(mult))
		out, err := quote(ctx, target, baseInPool, fee, amountIn)
		if err != nil {
			lastErr = err
			continue
		}
		if out != nil && out.Sign() > 0 {
			return pass()
		}
	}
	if lastErr != nil {
		return failf("fail: sellability v3: no positive quote (last error: %v)", lastErr)
	}
	return fail("fail: sellability v3: no positive quote")
}

// LPRisk is check 4: starts at 0, +2 if neither side is a recognized
// base token, +2 if aggregator liquidity < 3000, +1 if in [3000, 8000).
// Rejects if the final score >= 2.
func (p *Probes) LPRisk(hasBaseSide bool, aggregatorLiquidityUsd float64) Result {
	score := 0
	if !hasBaseSide {
		score += 2
	}
	switch {
	case aggregatorLiquidityUsd < 3000:
		score += 2
	case aggregatorLiquidityUsd < 8000:
		score += 1
	}
	if score >= 2 {
		return failf("fail: lp-risk score %d", score)
	}
	return pass()
}

// TaxSample is check 5: only evaluated when samples already exist
// (spec.md §4.2 step 5, §4.8: "never blocking on first sight").
func (p *Probes) TaxSample(avg tax.Avg) Result {
	if avg.BuyOK && avg.Buy > p.MaxTaxPct {
		return failf("fail: buy tax %.4f exceeds max %.4f", avg.Buy, p.MaxTaxPct)
	}
	if avg.SellOK && avg.Sell > p.MaxTaxPct {
		return failf("fail: sell tax %.4f exceeds max %.4f", avg.Sell, p.MaxTaxPct)
	}
	return pass()
}
