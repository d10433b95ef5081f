package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dexsentinel/dexsentinel/configs"
	"github.com/dexsentinel/dexsentinel/internal/chain"
	"github.com/dexsentinel/dexsentinel/internal/chainio"
	"github.com/dexsentinel/dexsentinel/internal/gate"
	"github.com/dexsentinel/dexsentinel/internal/ingress"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/metrics"
	"github.com/dexsentinel/dexsentinel/internal/oracle"
	"github.com/dexsentinel/dexsentinel/internal/store"
	"github.com/dexsentinel/dexsentinel/internal/subscriber"
	"github.com/dexsentinel/dexsentinel/internal/tax"
	"github.com/dexsentinel/dexsentinel/internal/watchlist"
)

// composition holds every collaborator the Gate Pipeline's ProbeInputs
// construction needs, plus the live MarketWatcher handles it starts and
// stops as markets activate and later go idle.
type composition struct {
	cfg             *configs.Config
	eth             map[market.Chain]*ethclient.Client
	tokens          *market.BaseTokenTable
	wl              *watchlist.Watchlist
	oracle          *oracle.Oracle
	taxEstimator    *tax.Estimator
	pipeline        *gate.Pipeline
	reservesReaders map[market.Chain]*chain.ReservesReader
	recorder        *store.Recorder
	ingress         *ingress.Ingress

	mu             sync.Mutex
	marketWatchers map[market.Key]func()
}

// buildFactoryWatchers constructs one FactoryWatcher per configured
// chain/DEX-family combination named in the topology.
func (d *composition) buildFactoryWatchers() []ingress.FactoryWatcher {
	var out []ingress.FactoryWatcher
	for name, topo := range d.cfg.Topology.Chains {
		chainName := market.Chain(name)
		eth, ok := d.eth[chainName]
		if !ok {
			continue
		}
		if topo.V2FactoryAddr != "" {
			out = append(out, chain.NewV2FactoryWatcher(eth, chainName, common.HexToAddress(topo.V2FactoryAddr)))
		}
		if topo.V3FactoryAddr != "" {
			out = append(out, chain.NewV3FactoryWatcher(eth, chainName, common.HexToAddress(topo.V3FactoryAddr)))
		}
	}
	return out
}

// onNewCandidate runs the Gate Pipeline for a freshly-discovered
// candidate and, on activation, acquires a slot and starts its
// MarketWatcher (spec.md §4.2/§4.3: Ingress discovers, Gate admits,
// MarketSubscriber streams trades for active markets).
func (d *composition) onNewCandidate(ing *ingress.Ingress, sub *subscriber.Subscriber, c market.Candidate) {
	ctx := context.Background()
	key := c.Key()

	in, err := d.buildProbeInputs(ctx, c)
	if err != nil {
		d.wl.Reject(key, err.Error())
		metrics.IncRejection(string(key.Chain), "probe-input-error")
		return
	}

	if _, err := d.pipeline.Run(ctx, key, in); err != nil {
		metrics.IncRejection(string(key.Chain), "pipeline-error")
		return
	}

	m, found := d.wl.Get(key)
	if !found {
		return
	}
	if m.Status == market.StatusRejected {
		metrics.IncRejection(string(key.Chain), m.Reason)
		if d.recorder != nil {
			_ = d.recorder.RecordRejection(string(key.Chain), string(key.Type), key.Address, m.Reason)
		}
		return
	}
	if m.Status != market.StatusActive {
		return
	}

	activeCount := 0
	for _, k := range d.wl.Active() {
		if k.Chain == key.Chain && k.Type == key.Type {
			activeCount++
		}
	}
	metrics.SetActiveMarkets(string(key.Chain), string(key.Type), activeCount)

	if !ing.TryAcquireSlot(key) {
		return
	}

	reader, ok := d.reservesReaders[key.Chain]
	if !ok {
		return
	}
	reader.Register(key, common.HexToAddress(key.Address))

	eth, ok := d.eth[key.Chain]
	if !ok {
		return
	}
	dec0 := chainio.Decimals(ctx, chain.NewERC20Client(eth, common.HexToAddress(m.Token0)))
	dec1 := chainio.Decimals(ctx, chain.NewERC20Client(eth, common.HexToAddress(m.Token1)))

	watcher := chain.NewMarketWatcher(eth, key, m.Token0, m.Token1, dec0, dec1, sub)
	stop, err := watcher.Start(ctx)
	if err != nil {
		reader.Forget(key)
		return
	}

	d.mu.Lock()
	d.marketWatchers[key] = stop
	d.mu.Unlock()
}

// onEvictedMarket stops key's MarketWatcher and forgets its bound
// ContractClient, called by Ingress's idle sweeper.
func (d *composition) onEvictedMarket(key market.Key) {
	d.mu.Lock()
	stop, ok := d.marketWatchers[key]
	if ok {
		delete(d.marketWatchers, key)
	}
	d.mu.Unlock()
	if ok {
		stop()
	}
	if reader, ok := d.reservesReaders[key.Chain]; ok {
		reader.Forget(key)
	}
}

// buildProbeInputs gathers every on-chain read the Gate Pipeline's
// checks need for one candidate (spec.md §4.2).
func (d *composition) buildProbeInputs(ctx context.Context, c market.Candidate) (gate.ProbeInputs, error) {
	eth, ok := d.eth[c.Chain]
	if !ok {
		return gate.ProbeInputs{}, fmt.Errorf("no RPC client for chain %s", c.Chain)
	}

	pairAddr := common.HexToAddress(c.Address)
	token0Addr := common.HexToAddress(c.Token0)
	token1Addr := common.HexToAddress(c.Token1)

	dec0 := chainio.Decimals(ctx, chain.NewERC20Client(eth, token0Addr))
	dec1 := chainio.Decimals(ctx, chain.NewERC20Client(eth, token1Addr))

	hasBaseSide := d.tokens.IsBaseToken(c.Chain, c.Token0) || d.tokens.IsBaseToken(c.Chain, c.Token1)

	targetAddr, targetDec := token0Addr, dec0
	if d.tokens.IsBaseToken(c.Chain, c.Token0) && !d.tokens.IsBaseToken(c.Chain, c.Token1) {
		targetAddr, targetDec = token1Addr, dec1
	}

	key := c.Key()
	in := gate.ProbeInputs{
		HasCode:                chain.NewCodeChecker(eth),
		PairAddr:               pairAddr,
		Token0Addr:             token0Addr,
		Token1Addr:             token1Addr,
		Dec0:                   dec0,
		Dec1:                   dec1,
		AggregatorLiquidityUsd: c.LiquidityUsdHint,
		HasBaseSide:            hasBaseSide,
		TargetAddr:             targetAddr,
		TargetDecimals:         targetDec,
		TaxAvg:                 d.taxEstimator.GetAvg(key),
	}

	if c.Type == market.V2 {
		pairClient := chain.NewPairClient(eth, pairAddr)
		if res, err := chainio.GetReserves(ctx, pairClient); err == nil {
			if usd0, usd1, ok := d.oracle.ReservesUSD(ctx, c.Chain, c.Token0, c.Token1, res.Reserve0, res.Reserve1, dec0, dec1); ok {
				in.HaveReservesUsd = true
				in.ReservesUsd0 = usd0
				in.ReservesUsd1 = usd1
			}
		}
		topo := d.cfg.Topology.Chains[string(c.Chain)]
		if topo.V2RouterAddr == "" {
			return gate.ProbeInputs{}, fmt.Errorf("no V2 router configured for chain %s", c.Chain)
		}
		in.RouterQuery = chain.NewRouterQuerier(chain.NewRouterClient(eth, common.HexToAddress(topo.V2RouterAddr)))
		return in, nil
	}

	topo := d.cfg.Topology.Chains[string(c.Chain)]
	if topo.V3FactoryAddr == "" || topo.V3QuoterAddr == "" {
		return gate.ProbeInputs{}, fmt.Errorf("no V3 factory/quoter configured for chain %s", c.Chain)
	}
	if c.Fee != nil {
		in.Fee = *c.Fee
	}
	in.ResolvePool = chain.NewV3PoolResolver(chain.NewV3FactoryClient(eth, common.HexToAddress(topo.V3FactoryAddr)))
	in.Quote = chain.NewV3Quoter(chain.NewV3QuoterClient(eth, common.HexToAddress(topo.V3QuoterAddr)))
	return in, nil
}
