package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSqrtPriceToPrice(t *testing.T) {
	val, _ := new(big.Int).SetString("267326922672530907272725", 0)
	price := SqrtPriceToPrice(val)
	f, _ := price.Float64()
	assert.Greater(t, f, 0.0)
}

func TestV3RelativePriceUndefinedOnZero(t *testing.T) {
	_, err := V3RelativePrice(big.NewInt(0), 18, 18)
	assert.ErrorIs(t, err, ErrUndefinedPrice)
}

func TestV2RelativePriceRoundTrip(t *testing.T) {
	r0 := big.NewInt(1_000_000)
	r1 := big.NewInt(3_000_000)
	p0in1, p1in0, err := V2RelativePrice(r0, r1, 18, 18)
	assert.NoError(t, err)

	product := new(big.Float).Mul(p0in1, p1in0)
	got, _ := product.Float64()
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestV2RelativePriceUndefinedOnZeroReserve(t *testing.T) {
	_, _, err := V2RelativePrice(big.NewInt(0), big.NewInt(5), 18, 18)
	assert.ErrorIs(t, err, ErrUndefinedPrice)
}

func TestV3RelativePriceAppliesDecimalAdjustment(t *testing.T) {
	// Exercises the decimal-adjustment exponent direction: a raw price of 1
	// with dec0=18, dec1=6 becomes 1e12.
	sp, _ := new(big.Int).SetString("79228162514264337593543950336", 10) // sp = 1 (2^96)
	price, err := V3RelativePrice(sp, 18, 6)
	assert.NoError(t, err)
	f, _ := price.Float64()
	assert.InDelta(t, 1e12, f, 1e6)
}
