package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dexsentinel/dexsentinel/internal/chainio"
	"github.com/dexsentinel/dexsentinel/internal/safety"
	"github.com/dexsentinel/dexsentinel/pkg/contractclient"
)

// NewCodeChecker adapts chainio.HasBytecode into a safety.CodeChecker.
func NewCodeChecker(eth *ethclient.Client) safety.CodeChecker {
	return func(ctx context.Context, address common.Address) (bool, error) {
		return chainio.HasBytecode(ctx, eth, address)
	}
}

// NewRouterQuerier adapts chainio.GetAmountsOut into a safety.RouterQuerier
// bound to one router's ContractClient.
func NewRouterQuerier(router contractclient.ContractClient) safety.RouterQuerier {
	return func(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
		return chainio.GetAmountsOut(ctx, router, amountIn, path)
	}
}

// NewV3PoolResolver adapts chainio.GetPool into a safety.V3PoolResolver
// bound to one V3 factory's ContractClient.
func NewV3PoolResolver(factory contractclient.ContractClient) safety.V3PoolResolver {
	return func(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
		return chainio.GetPool(ctx, factory, tokenA, tokenB, fee)
	}
}

// NewV3Quoter adapts chainio.QuoteExactInputSingle into a safety.V3Quoter
// bound to one V3 quoter's ContractClient.
func NewV3Quoter(quoter contractclient.ContractClient) safety.V3Quoter {
	return func(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
		return chainio.QuoteExactInputSingle(ctx, quoter, tokenIn, tokenOut, fee, amountIn)
	}
}

// NewPairClient builds a ContractClient bound to a V2 pair address, used
// for GetReserves reads.
func NewPairClient(eth *ethclient.Client, pairAddr common.Address) contractclient.ContractClient {
	return contractclient.NewContractClient(eth, pairAddr, chainio.V2PairABI())
}

// NewPoolClient builds a ContractClient bound to a V3 pool address, used
// by ReservesReader for GetSlot0 reads.
func NewPoolClient(eth *ethclient.Client, poolAddr common.Address) contractclient.ContractClient {
	return contractclient.NewContractClient(eth, poolAddr, chainio.V3PoolABI())
}

// NewRouterClient builds a ContractClient bound to a V2 router address.
func NewRouterClient(eth *ethclient.Client, routerAddr common.Address) contractclient.ContractClient {
	return contractclient.NewContractClient(eth, routerAddr, chainio.V2RouterABI())
}

// NewV3FactoryClient builds a ContractClient bound to a V3 factory address.
func NewV3FactoryClient(eth *ethclient.Client, factoryAddr common.Address) contractclient.ContractClient {
	return contractclient.NewContractClient(eth, factoryAddr, chainio.V3FactoryABI())
}

// NewV3QuoterClient builds a ContractClient bound to a V3 quoter address.
func NewV3QuoterClient(eth *ethclient.Client, quoterAddr common.Address) contractclient.ContractClient {
	return contractclient.NewContractClient(eth, quoterAddr, chainio.V3QuoterABI())
}

// NewERC20Client builds a ContractClient bound to an ERC20 token address.
func NewERC20Client(eth *ethclient.Client, tokenAddr common.Address) contractclient.ContractClient {
	return contractclient.NewContractClient(eth, tokenAddr, chainio.ERC20ABI())
}
