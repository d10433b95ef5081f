package gate

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/safety"
	"github.com/dexsentinel/dexsentinel/internal/watchlist"
)

func testTable() *market.BaseTokenTable {
	return market.NewBaseTokenTable(map[market.Chain][]market.BaseToken{
		market.ChainBSC: {
			{Symbol: "WBNB", Address: "0x000000000000000000000000000000000000bbbb", Priority: 0},
		},
	})
}

func passingInputs() ProbeInputs {
	return ProbeInputs{
		HasCode:         func(ctx context.Context, addr common.Address) (bool, error) { return true, nil },
		PairAddr:        common.HexToAddress("0xpair"),
		Token0Addr:      common.HexToAddress("0xmeme"),
		Token1Addr:      common.HexToAddress("0x000000000000000000000000000000000000bbbb"),
		Dec0:            18,
		Dec1:            18,
		HaveReservesUsd: true,
		ReservesUsd1:    3000,
		HasBaseSide:     true,
		RouterQuery: func(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
			return []*big.Int{amountIn, big.NewInt(1)}, nil
		},
		AggregatorLiquidityUsd: 10000,

		TargetAddr:     common.HexToAddress("0xmeme"),
		TargetDecimals: 18,
	}
}

func TestRunActivatesOnAllChecksPassing(t *testing.T) {
	wl := watchlist.New()
	c := market.Candidate{Chain: market.ChainBSC, Type: market.V2, Address: "0xpair", Token0: "0xmeme", Token1: "0x000000000000000000000000000000000000bbbb"}
	wl.Register(c)

	p := New(wl, safety.New(testTable()))
	liq, err := p.Run(context.Background(), c.Key(), passingInputs())
	require.NoError(t, err)
	assert.Equal(t, 6000.0, liq)

	m, _ := wl.Get(c.Key())
	assert.Equal(t, market.StatusActive, m.Status)
}

func TestRunRejectsOnBytecodeFailure(t *testing.T) {
	wl := watchlist.New()
	c := market.Candidate{Chain: market.ChainBSC, Type: market.V2, Address: "0xpair", Token0: "0xmeme", Token1: "0x000000000000000000000000000000000000bbbb"}
	wl.Register(c)

	in := passingInputs()
	in.HasCode = func(ctx context.Context, addr common.Address) (bool, error) { return false, nil }

	p := New(wl, safety.New(testTable()))
	_, err := p.Run(context.Background(), c.Key(), in)
	require.NoError(t, err)

	m, _ := wl.Get(c.Key())
	assert.Equal(t, market.StatusRejected, m.Status)
	assert.Contains(t, m.Reason, "bytecode")
}

func TestRunShortCircuitsBeforeSellability(t *testing.T) {
	wl := watchlist.New()
	c := market.Candidate{Chain: market.ChainBSC, Type: market.V2, Address: "0xpair", Token0: "0xmeme", Token1: "0x000000000000000000000000000000000000bbbb"}
	wl.Register(c)

	in := passingInputs()
	in.HaveReservesUsd = true
	in.ReservesUsd1 = 0 // liquidity below minimum
	in.RouterQuery = func(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
		t.Fatal("sellability should not be probed once liquidity fails")
		return nil, nil
	}

	p := New(wl, safety.New(testTable()))
	_, err := p.Run(context.Background(), c.Key(), in)
	require.NoError(t, err)

	m, _ := wl.Get(c.Key())
	assert.Equal(t, market.StatusRejected, m.Status)
	assert.Contains(t, m.Reason, "liquidity")
}
