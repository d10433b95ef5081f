// Package amm implements the constant-product (V2) and concentrated-liquidity
// (V3) mid-price formulas the detector needs to value trades and liquidity in
// USD. Only the read-side math survives from the teacher repo's liquidity-
// repositioning toolkit (tick-bound and mint-sizing helpers do not apply to a
// read-only detector and were dropped — see DESIGN.md).
package amm

import (
	"errors"
	"math"
	"math/big"
)

// q96 is 2^96, the fixed-point base Uniswap V3 uses for sqrtPriceX96.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// ErrUndefinedPrice is returned when a price cannot be derived from the given
// pool state (non-positive reserves, non-finite sqrt price, etc).
var ErrUndefinedPrice = errors.New("amm: price undefined for given pool state")

// SqrtPriceToPrice converts a Uniswap V3 sqrtPriceX96 value into the raw
// (decimal-unadjusted) ratio token1/token0, i.e. sp = sqrtPriceX96 / 2^96,
// price = sp^2.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	sp := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	return new(big.Float).Mul(sp, sp)
}

// pow10 returns 10^n as a *big.Float, n may be negative.
func pow10(n int) *big.Float {
	if n >= 0 {
		v := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
		return new(big.Float).SetInt(v)
	}
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n)), nil)
	return new(big.Float).Quo(big.NewFloat(1), new(big.Float).SetInt(v))
}

// V3RelativePrice returns price(token1 per token0) = sp^2 * 10^(dec0-dec1),
// per spec §4.5. Returns ErrUndefinedPrice if sqrtPriceX96 is nil, zero, or
// the resulting price is not finite/positive.
func V3RelativePrice(sqrtPriceX96 *big.Int, dec0, dec1 int) (*big.Float, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, ErrUndefinedPrice
	}
	raw := SqrtPriceToPrice(sqrtPriceX96)
	price := new(big.Float).Mul(raw, pow10(dec0-dec1))
	f, _ := price.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil, ErrUndefinedPrice
	}
	return price, nil
}

// V2RelativePrice returns price(token0 in token1) and price(token1 in token0)
// from reserves, per spec §4.5:
//
//	price(token0 in token1) = (r1/10^d1) / (r0/10^d0)
//
// Undefined (ErrUndefinedPrice) if either normalized reserve is <= 0.
func V2RelativePrice(r0, r1 *big.Int, dec0, dec1 int) (p0in1, p1in0 *big.Float, err error) {
	if r0 == nil || r1 == nil || r0.Sign() <= 0 || r1.Sign() <= 0 {
		return nil, nil, ErrUndefinedPrice
	}
	n0 := new(big.Float).Quo(new(big.Float).SetInt(r0), pow10(dec0))
	n1 := new(big.Float).Quo(new(big.Float).SetInt(r1), pow10(dec1))
	if n0.Sign() <= 0 || n1.Sign() <= 0 {
		return nil, nil, ErrUndefinedPrice
	}
	p0in1 = new(big.Float).Quo(n1, n0)
	p1in0 = new(big.Float).Quo(n0, n1)
	return p0in1, p1in0, nil
}

// ToFloat64 converts a *big.Float price to float64 for use in statistics,
// per spec §9: never use double precision for amounts feeding further
// on-chain probes, only for derived USD statistics.
func ToFloat64(f *big.Float) float64 {
	if f == nil {
		return 0
	}
	v, _ := f.Float64()
	return v
}
