// Package gate implements the Gate Pipeline (C10, spec.md §4.2): it
// orchestrates the SafetyProbes checks in order, short-circuiting on the
// first failure, and updates the Watchlist with the result.
package gate

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/safety"
	"github.com/dexsentinel/dexsentinel/internal/tax"
	"github.com/dexsentinel/dexsentinel/internal/watchlist"
)

// ProbeInputs bundles everything a single candidate's checks need. Every
// field is supplied by the caller (ingress/composition glue) per
// candidate — Gate itself holds no chain state (spec.md §9: explicit
// collaborators).
type ProbeInputs struct {
	HasCode safety.CodeChecker

	PairAddr, Token0Addr, Token1Addr common.Address
	Dec0, Dec1                       int

	HaveReservesUsd            bool
	ReservesUsd0, ReservesUsd1 float64
	AggregatorLiquidityUsd     float64
	HasBaseSide                bool

	// V2-only.
	RouterQuery safety.RouterQuerier

	// V3-only.
	Fee         uint32
	ResolvePool safety.V3PoolResolver
	Quote       safety.V3Quoter

	TargetAddr     common.Address
	TargetDecimals int

	TaxAvg tax.Avg
}

// Pipeline runs the Gate Pipeline checks against a Watchlist entry.
type Pipeline struct {
	watchlist *watchlist.Watchlist
	probes    *safety.Probes
}

// New builds a Pipeline.
func New(wl *watchlist.Watchlist, probes *safety.Probes) *Pipeline {
	return &Pipeline{watchlist: wl, probes: probes}
}

// Run executes every check in spec.md §4.2's order against key (which
// must already be Pending in the Watchlist), transitioning it to Active
// or Rejected. Returns the observed USD liquidity on success.
func (p *Pipeline) Run(ctx context.Context, key market.Key, in ProbeInputs) (liquidityUsd float64, err error) {
	if r := p.probes.BytecodePresence(ctx, in.HasCode, in.PairAddr, in.Token0Addr, in.Token1Addr); !r.Pass {
		p.reject(key, r.Reason)
		return 0, nil
	}

	var liq safety.LiquidityResult
	if key.Type == market.V2 {
		liq = p.probes.MinLiquidityV2(key.Chain, in.Token0Addr.Hex(), in.Token1Addr.Hex(), in.ReservesUsd0, in.ReservesUsd1, in.HaveReservesUsd, in.AggregatorLiquidityUsd)
	} else {
		liq = p.probes.MinLiquidityV3(in.AggregatorLiquidityUsd)
	}
	if !liq.Pass {
		p.reject(key, liq.Reason)
		return 0, nil
	}

	var sell safety.Result
	if key.Type == market.V2 {
		sell = p.probes.SellabilityV2(ctx, key.Chain, in.TargetAddr, in.TargetDecimals, in.RouterQuery)
	} else {
		sell = p.probes.SellabilityV3(ctx, key.Chain, in.PairAddr, in.Token0Addr, in.Token1Addr, in.Fee, in.TargetAddr, in.TargetDecimals, in.ResolvePool, in.Quote)
	}
	if !sell.Pass {
		p.reject(key, sell.Reason)
		return 0, nil
	}

	if r := p.probes.LPRisk(in.HasBaseSide, in.AggregatorLiquidityUsd); !r.Pass {
		p.reject(key, r.Reason)
		return 0, nil
	}

	if r := p.probes.TaxSample(in.TaxAvg); !r.Pass {
		p.reject(key, r.Reason)
		return 0, nil
	}

	p.watchlist.Activate(key, liq.LiquidityUsd)
	return liq.LiquidityUsd, nil
}

func (p *Pipeline) reject(key market.Key, reason string) {
	p.watchlist.Reject(key, reason)
}
