package safety

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/tax"
)

func testTable() *market.BaseTokenTable {
	return market.NewBaseTokenTable(map[market.Chain][]market.BaseToken{
		market.ChainBSC: {
			{Symbol: "WBNB", Address: "0x000000000000000000000000000000000000bbbb", Priority: 0},
			{Symbol: "USDT", Address: "0x0000000000000000000000000000000000dddd", Priority: 1, Stable: true},
		},
	})
}

func TestBytecodePresencePassesWhenAllHaveCode(t *testing.T) {
	p := New(testTable())
	hasCode := func(ctx context.Context, addr common.Address) (bool, error) { return true, nil }
	r := p.BytecodePresence(context.Background(), hasCode, common.HexToAddress("0x1"), common.HexToAddress("0x2"))
	assert.True(t, r.Pass)
}

func TestBytecodePresenceFailsOnMissingCode(t *testing.T) {
	p := New(testTable())
	hasCode := func(ctx context.Context, addr common.Address) (bool, error) {
		return addr != common.HexToAddress("0x2"), nil
	}
	r := p.BytecodePresence(context.Background(), hasCode, common.HexToAddress("0x1"), common.HexToAddress("0x2"))
	assert.False(t, r.Pass)
}

func TestMinLiquidityV2UsesBaseSideReserve(t *testing.T) {
	p := New(testTable())
	r := p.MinLiquidityV2(market.ChainBSC, "0xmeme", "0x000000000000000000000000000000000000bbbb", 0, 3000, true, 1000)
	assert.True(t, r.Pass)
	assert.Equal(t, 6000.0, r.LiquidityUsd)
}

func TestMinLiquidityV2FallsBackToAggregatorWhenNoBaseSide(t *testing.T) {
	p := New(testTable())
	r := p.MinLiquidityV2(market.ChainBSC, "0xmeme1", "0xmeme2", 0, 0, true, 4000)
	assert.False(t, r.Pass)
	assert.Equal(t, 4000.0, r.LiquidityUsd)
}

func TestMinLiquidityV3UsesAggregatorValue(t *testing.T) {
	p := New(testTable())
	r := p.MinLiquidityV3(10000)
	assert.True(t, r.Pass)
}

func TestSellabilityV2PassesOnFirstHit(t *testing.T) {
	p := New(testTable())
	query := func(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
		return []*big.Int{amountIn, big.NewInt(1)}, nil
	}
	r := p.SellabilityV2(context.Background(), market.ChainBSC, common.HexToAddress("0xmeme"), 18, query)
	assert.True(t, r.Pass)
}

func TestSellabilityV2FailsWhenAllRoutesZero(t *testing.T) {
	p := New(testTable())
	query := func(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
		return []*big.Int{amountIn, big.NewInt(0)}, nil
	}
	r := p.SellabilityV2(context.Background(), market.ChainBSC, common.HexToAddress("0xmeme"), 18, query)
	assert.False(t, r.Pass)
}

func TestSellabilityV2RecordsErrorWhenEveryRouteErrors(t *testing.T) {
	p := New(testTable())
	query := func(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
		return nil, errors.New("execution reverted")
	}
	r := p.SellabilityV2(context.Background(), market.ChainBSC, common.HexToAddress("0xmeme"), 18, query)
	assert.False(t, r.Pass)
	assert.Contains(t, r.Reason, "execution reverted")
}

func TestSellabilityV3FailsOnPoolMismatch(t *testing.T) {
	p := New(testTable())
	observed := common.HexToAddress("0xobserved")
	resolve := func(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
		return common.HexToAddress("0xother"), nil
	}
	quote := func(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
		return big.NewInt(1), nil
	}
	r := p.SellabilityV3(context.Background(), market.ChainBSC, observed, common.HexToAddress("0xmeme"), common.HexToAddress("0x000000000000000000000000000000000000bbbb"), 3000, common.HexToAddress("0xmeme"), 18, resolve, quote)
	assert.False(t, r.Pass)
}

func TestSellabilityV3PassesWithPositiveQuote(t *testing.T) {
	p := New(testTable())
	pool := common.HexToAddress("0xpool")
	resolve := func(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
		return pool, nil
	}
	quote := func(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
		return big.NewInt(42), nil
	}
	target := common.HexToAddress("0xmeme")
	base := common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	r := p.SellabilityV3(context.Background(), market.ChainBSC, pool, target, base, 3000, target, 18, resolve, quote)
	assert.True(t, r.Pass)
}

func TestLPRiskRejectsLowScoreThreshold(t *testing.T) {
	p := New(testTable())
	assert.True(t, p.LPRisk(true, 10000).Pass)
	assert.False(t, p.LPRisk(false, 10000).Pass) // neither side base: +2
	assert.False(t, p.LPRisk(true, 2000).Pass)   // liquidity < 3000: +2
	assert.True(t, p.LPRisk(true, 5000).Pass)    // liquidity in [3000,8000): +1, below threshold
}

func TestTaxSamplePassesWhenNoSamplesYet(t *testing.T) {
	p := New(testTable())
	r := p.TaxSample(tax.Avg{})
	assert.True(t, r.Pass)
}

func TestTaxSampleRejectsAboveMax(t *testing.T) {
	p := New(testTable())
	r := p.TaxSample(tax.Avg{BuyOK: true, Buy: 0.25})
	assert.False(t, r.Pass)
}
