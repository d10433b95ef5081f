package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dexsentinel/dexsentinel/internal/chainio"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/pkg/contractclient"
)

// ReservesReader implements oracle.ChainReader atop live RPC calls,
// keyed by market.Key (spec.md §9: arena+key — the reader holds only a
// registry of bound ContractClients, never per-market business state).
type ReservesReader struct {
	eth *ethclient.Client

	mu      sync.Mutex
	clients map[market.Key]contractclient.ContractClient
}

// NewReservesReader builds an empty reader bound to eth.
func NewReservesReader(eth *ethclient.Client) *ReservesReader {
	return &ReservesReader{eth: eth, clients: make(map[market.Key]contractclient.ContractClient)}
}

// Register binds addr as key's pair/pool contract, called once when the
// Gate Pipeline activates a market.
func (r *ReservesReader) Register(key market.Key, addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key.Type == market.V3 {
		r.clients[key] = NewPoolClient(r.eth, addr)
		return
	}
	r.clients[key] = NewPairClient(r.eth, addr)
}

// Forget drops key's bound client, called by the slot reaper on eviction.
func (r *ReservesReader) Forget(key market.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, key)
}

func (r *ReservesReader) clientFor(key market.Key) (contractclient.ContractClient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc, ok := r.clients[key]
	return cc, ok
}

// V2Reserves implements oracle.ChainReader.
func (r *ReservesReader) V2Reserves(ctx context.Context, key market.Key) (*big.Int, *big.Int, error) {
	cc, ok := r.clientFor(key)
	if !ok {
		return nil, nil, fmt.Errorf("chain: no pair client registered for %s", key)
	}
	res, err := chainio.GetReserves(ctx, cc)
	if err != nil {
		return nil, nil, err
	}
	return res.Reserve0, res.Reserve1, nil
}

// V3SqrtPriceX96 implements oracle.ChainReader.
func (r *ReservesReader) V3SqrtPriceX96(ctx context.Context, key market.Key) (*big.Int, error) {
	cc, ok := r.clientFor(key)
	if !ok {
		return nil, fmt.Errorf("chain: no pool client registered for %s", key)
	}
	slot0, err := chainio.GetSlot0(ctx, cc)
	if err != nil {
		return nil, err
	}
	return slot0.SqrtPriceX96, nil
}

// TokenDecimals implements oracle.ChainReader.
func (r *ReservesReader) TokenDecimals(ctx context.Context, chain market.Chain, token string) (int, error) {
	cc := NewERC20Client(r.eth, common.HexToAddress(token))
	return chainio.Decimals(ctx, cc), nil
}
