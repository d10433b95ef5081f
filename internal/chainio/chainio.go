// Package chainio provides typed read helpers over the generic
// contractclient.ContractClient for the specific calls spec.md §6 lists:
// ERC20 decimals/totalSupply, V2 pair getReserves, V3 pool slot0, V2
// router getAmountsOut, V3 factory getPool, V3 quoter
// quoteExactInputSingle, and eth_getCode bytecode presence.
package chainio

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dexsentinel/dexsentinel/pkg/contractclient"
)

var (
	erc20, v2Pair, v2Factory, v2Router, v3Pool, v3Factory, v3Quoter abi.ABI
)

func init() {
	var err error
	erc20, err = abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("chainio: invalid erc20 ABI: %v", err))
	}
	v2Pair, err = abi.JSON(strings.NewReader(v2PairABI))
	if err != nil {
		panic(fmt.Sprintf("chainio: invalid v2 pair ABI: %v", err))
	}
	v2Factory, err = abi.JSON(strings.NewReader(v2FactoryABI))
	if err != nil {
		panic(fmt.Sprintf("chainio: invalid v2 factory ABI: %v", err))
	}
	v2Router, err = abi.JSON(strings.NewReader(v2RouterABI))
	if err != nil {
		panic(fmt.Sprintf("chainio: invalid v2 router ABI: %v", err))
	}
	v3Pool, err = abi.JSON(strings.NewReader(v3PoolABI))
	if err != nil {
		panic(fmt.Sprintf("chainio: invalid v3 pool ABI: %v", err))
	}
	v3Factory, err = abi.JSON(strings.NewReader(v3FactoryABI))
	if err != nil {
		panic(fmt.Sprintf("chainio: invalid v3 factory ABI: %v", err))
	}
	v3Quoter, err = abi.JSON(strings.NewReader(v3QuoterABI))
	if err != nil {
		panic(fmt.Sprintf("chainio: invalid v3 quoter ABI: %v", err))
	}
}

// ERC20ABI, V2PairABI, V3PoolABI, V2FactoryABI, V3FactoryABI return the
// parsed ABI for constructing a contractclient.ContractClient against the
// matching contract kind.
func ERC20ABI() abi.ABI     { return erc20 }
func V2PairABI() abi.ABI    { return v2Pair }
func V2FactoryABI() abi.ABI { return v2Factory }
func V2RouterABI() abi.ABI  { return v2Router }
func V3PoolABI() abi.ABI    { return v3Pool }
func V3FactoryABI() abi.ABI { return v3Factory }
func V3QuoterABI() abi.ABI  { return v3Quoter }

// Decimals calls ERC20 decimals(), defaulting to 18 on any error per
// spec.md §4.5 ("on lookup failure, fall back to 18").
func Decimals(ctx context.Context, cc contractclient.ContractClient) int {
	out, err := cc.CallAt(ctx, nil, nil, "decimals")
	if err != nil || len(out) != 1 {
		return 18
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 18
	}
	return int(d)
}

// TotalSupply calls ERC20 totalSupply().
func TotalSupply(ctx context.Context, cc contractclient.ContractClient) (*big.Int, error) {
	out, err := cc.CallAt(ctx, nil, nil, "totalSupply")
	if err != nil {
		return nil, fmt.Errorf("chainio: totalSupply: %w", err)
	}
	ts, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chainio: totalSupply: unexpected return type")
	}
	return ts, nil
}

// Reserves is the V2 pair getReserves() result.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// GetReserves calls a V2 pair's getReserves().
func GetReserves(ctx context.Context, cc contractclient.ContractClient) (Reserves, error) {
	out, err := cc.CallAt(ctx, nil, nil, "getReserves")
	if err != nil {
		return Reserves{}, fmt.Errorf("chainio: getReserves: %w", err)
	}
	if len(out) < 2 {
		return Reserves{}, fmt.Errorf("chainio: getReserves: unexpected output length %d", len(out))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return Reserves{}, fmt.Errorf("chainio: getReserves: unexpected return types")
	}
	return Reserves{Reserve0: r0, Reserve1: r1}, nil
}

// Slot0 is the subset of the V3 pool slot0() tuple the detector needs.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// GetSlot0 calls a V3 pool's slot0().
func GetSlot0(ctx context.Context, cc contractclient.ContractClient) (Slot0, error) {
	out, err := cc.CallAt(ctx, nil, nil, "slot0")
	if err != nil {
		return Slot0{}, fmt.Errorf("chainio: slot0: %w", err)
	}
	if len(out) < 2 {
		return Slot0{}, fmt.Errorf("chainio: slot0: unexpected output length %d", len(out))
	}
	sp, ok := out[0].(*big.Int)
	if !ok {
		return Slot0{}, fmt.Errorf("chainio: slot0: unexpected sqrtPriceX96 type")
	}
	tick, ok := out[1].(*big.Int)
	if !ok {
		return Slot0{}, fmt.Errorf("chainio: slot0: unexpected tick type")
	}
	return Slot0{SqrtPriceX96: sp, Tick: int32(tick.Int64())}, nil
}

// GetAmountsOut calls a V2 router's getAmountsOut(amountIn, path), the
// static simulation used by the sellability safety probe (spec.md §6).
func GetAmountsOut(ctx context.Context, cc contractclient.ContractClient, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	out, err := cc.CallAt(ctx, nil, nil, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("chainio: getAmountsOut: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("chainio: getAmountsOut: unexpected return type")
	}
	return amounts, nil
}

// GetPool calls a V3 factory's getPool(tokenA, tokenB, fee).
func GetPool(ctx context.Context, cc contractclient.ContractClient, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	out, err := cc.CallAt(ctx, nil, nil, "getPool", tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, fmt.Errorf("chainio: getPool: %w", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chainio: getPool: unexpected return type")
	}
	return addr, nil
}

// QuoteExactInputSingle calls a V3 quoter's quoteExactInputSingle, the
// static simulation used for V3 sellability (spec.md §6).
func QuoteExactInputSingle(ctx context.Context, cc contractclient.ContractClient, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	out, err := cc.CallAt(ctx, nil, nil, "quoteExactInputSingle", tokenIn, tokenOut, fee, amountIn, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("chainio: quoteExactInputSingle: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chainio: quoteExactInputSingle: unexpected return type")
	}
	return amountOut, nil
}

// HasBytecode wraps contractclient.HasCode for the bytecode-presence
// safety probe (spec.md §4.2 step 1).
func HasBytecode(ctx context.Context, eth *ethclient.Client, address common.Address) (bool, error) {
	return contractclient.HasCode(ctx, eth, address)
}
