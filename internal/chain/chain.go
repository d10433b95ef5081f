// Package chain wires go-ethereum log subscriptions to Ingress's
// FactoryWatcher interface and to MarketSubscriber's event handlers: it
// is the only place raw chain logs get decoded into the detector's
// domain types (spec.md §1 scope: chain-node transport itself is out of
// scope, but decoding its events into candidates/trades is this
// package's job).
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dexsentinel/dexsentinel/internal/chainio"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/subscriber"
)

// LogSource is the subset of ethclient.Client a watcher needs — narrowed
// for testability (spec.md §9: explicit collaborators).
type LogSource interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// FactoryWatcher subscribes to one factory contract's PairCreated (V2)
// or PoolCreated (V3) event and emits decoded candidates. Implements
// ingress.FactoryWatcher.
type FactoryWatcher struct {
	source  LogSource
	address common.Address
	chain   market.Chain
	typ     market.Type
}

// NewV2FactoryWatcher watches a V2 factory for PairCreated.
func NewV2FactoryWatcher(source LogSource, chain market.Chain, factoryAddr common.Address) *FactoryWatcher {
	return &FactoryWatcher{source: source, address: factoryAddr, chain: chain, typ: market.V2}
}

// NewV3FactoryWatcher watches a V3 factory for PoolCreated.
func NewV3FactoryWatcher(source LogSource, chain market.Chain, factoryAddr common.Address) *FactoryWatcher {
	return &FactoryWatcher{source: source, address: factoryAddr, chain: chain, typ: market.V3}
}

// Watch blocks until ctx is canceled or the subscription errors,
// emitting a candidate for every decoded factory event.
func (w *FactoryWatcher) Watch(ctx context.Context, emit func(market.Candidate)) error {
	eventName := "PairCreated"
	contractABI := chainio.V2FactoryABI()
	if w.typ == market.V3 {
		eventName = "PoolCreated"
		contractABI = chainio.V3FactoryABI()
	}

	event, ok := contractABI.Events[eventName]
	if !ok {
		return fmt.Errorf("chain: ABI missing event %s", eventName)
	}

	logs := make(chan types.Log, 64)
	q := ethereum.FilterQuery{
		Addresses: []common.Address{w.address},
		Topics:    [][]common.Hash{{event.ID}},
	}
	sub, err := w.source.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return fmt.Errorf("chain: subscribe %s: %w", eventName, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("chain: %s subscription: %w", eventName, err)
		case lg := <-logs:
			c, err := w.decode(contractABI, lg)
			if err != nil {
				continue // malformed/unexpected log shape: skip, do not crash the watcher
			}
			emit(c)
		}
	}
}

func (w *FactoryWatcher) decode(contractABI abi.ABI, lg types.Log) (market.Candidate, error) {
	if w.typ == market.V2 {
		return w.decodeV2(contractABI, lg)
	}
	return w.decodeV3(contractABI, lg)
}

func (w *FactoryWatcher) decodeV2(contractABI abi.ABI, lg types.Log) (market.Candidate, error) {
	if len(lg.Topics) < 3 {
		return market.Candidate{}, fmt.Errorf("chain: PairCreated log missing indexed topics")
	}
	token0 := common.HexToAddress(lg.Topics[1].Hex())
	token1 := common.HexToAddress(lg.Topics[2].Hex())

	out := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(out, "PairCreated", lg.Data); err != nil {
		return market.Candidate{}, fmt.Errorf("chain: unpack PairCreated: %w", err)
	}
	pair, ok := out["pair"].(common.Address)
	if !ok {
		return market.Candidate{}, fmt.Errorf("chain: PairCreated missing pair address")
	}

	return market.Candidate{
		Chain:   w.chain,
		Type:    market.V2,
		Address: pair.Hex(),
		Token0:  token0.Hex(),
		Token1:  token1.Hex(),
	}, nil
}

func (w *FactoryWatcher) decodeV3(contractABI abi.ABI, lg types.Log) (market.Candidate, error) {
	if len(lg.Topics) < 4 {
		return market.Candidate{}, fmt.Errorf("chain: PoolCreated log missing indexed topics")
	}
	token0 := common.HexToAddress(lg.Topics[1].Hex())
	token1 := common.HexToAddress(lg.Topics[2].Hex())
	fee := uint32(new(big.Int).SetBytes(lg.Topics[3].Bytes()).Uint64())

	out := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(out, "PoolCreated", lg.Data); err != nil {
		return market.Candidate{}, fmt.Errorf("chain: unpack PoolCreated: %w", err)
	}
	pool, ok := out["pool"].(common.Address)
	if !ok {
		return market.Candidate{}, fmt.Errorf("chain: PoolCreated missing pool address")
	}

	return market.Candidate{
		Chain:   w.chain,
		Type:    market.V3,
		Address: pool.Hex(),
		Token0:  token0.Hex(),
		Token1:  token1.Hex(),
		Fee:     &fee,
	}, nil
}

// SubscriberHandler is the subset of subscriber.Subscriber's methods a
// MarketWatcher drives — narrowed to an interface so decode logic can be
// tested without the full WindowStore/TaxEstimator/AlertEvaluator graph.
type SubscriberHandler interface {
	HandleV2Swap(ctx context.Context, ev subscriber.V2SwapEvent)
	HandleV2Mint(ctx context.Context, ev subscriber.V2MintEvent) (float64, bool)
	HandleV3Swap(ctx context.Context, ev subscriber.V3SwapEvent)
}

// MarketWatcher subscribes to one active market's Swap/Mint logs and
// forwards decoded events to a SubscriberHandler (C8). Returned by Start
// as a stop handle used by the slot reaper (spec.md §4.3).
type MarketWatcher struct {
	source         LogSource
	key            market.Key
	token0, token1 string
	dec0           int
	dec1           int
	sub            SubscriberHandler
}

// NewMarketWatcher builds a watcher for one market.
func NewMarketWatcher(source LogSource, key market.Key, token0, token1 string, dec0, dec1 int, sub SubscriberHandler) *MarketWatcher {
	return &MarketWatcher{source: source, key: key, token0: token0, token1: token1, dec0: dec0, dec1: dec1, sub: sub}
}

// Start launches the watcher's subscription loop in a new goroutine and
// returns a stop function.
func (w *MarketWatcher) Start(ctx context.Context) (stop func(), err error) {
	ctx, cancel := context.WithCancel(ctx)

	contractABI := chainio.V2PairABI()
	eventNames := []string{"Swap", "Mint"}
	if w.key.Type == market.V3 {
		contractABI = chainio.V3PoolABI()
		eventNames = []string{"Swap"}
	}

	topics := make([]common.Hash, 0, len(eventNames))
	for _, name := range eventNames {
		ev, ok := contractABI.Events[name]
		if !ok {
			cancel()
			return nil, fmt.Errorf("chain: ABI missing event %s", name)
		}
		topics = append(topics, ev.ID)
	}

	addr := common.HexToAddress(w.key.Address)
	logs := make(chan types.Log, 64)
	q := ethereum.FilterQuery{
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{topics},
	}
	sub, err := w.source.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("chain: subscribe market logs: %w", err)
	}

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Err():
				return
			case lg := <-logs:
				w.handle(ctx, contractABI, lg)
			}
		}
	}()

	return cancel, nil
}

func (w *MarketWatcher) handle(ctx context.Context, contractABI abi.ABI, lg types.Log) {
	if len(lg.Topics) == 0 {
		return
	}
	switch {
	case w.key.Type == market.V2 && lg.Topics[0] == contractABI.Events["Swap"].ID:
		w.handleV2Swap(ctx, contractABI, lg)
	case w.key.Type == market.V2 && lg.Topics[0] == contractABI.Events["Mint"].ID:
		w.handleV2Mint(ctx, contractABI, lg)
	case w.key.Type == market.V3 && lg.Topics[0] == contractABI.Events["Swap"].ID:
		w.handleV3Swap(ctx, contractABI, lg)
	}
}

func (w *MarketWatcher) handleV2Swap(ctx context.Context, contractABI abi.ABI, lg types.Log) {
	if len(lg.Topics) < 3 {
		return
	}
	out := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(out, "Swap", lg.Data); err != nil {
		return
	}
	ev := subscriber.V2SwapEvent{
		Key:        w.key,
		Token0:     w.token0,
		Token1:     w.token1,
		Dec0:       w.dec0,
		Dec1:       w.dec1,
		Amount0In:  toBigInt(out["amount0In"]),
		Amount1In:  toBigInt(out["amount1In"]),
		Amount0Out: toBigInt(out["amount0Out"]),
		Amount1Out: toBigInt(out["amount1Out"]),
		Sender:     common.HexToAddress(lg.Topics[1].Hex()),
		To:         common.HexToAddress(lg.Topics[2].Hex()),
	}
	w.sub.HandleV2Swap(ctx, ev)
}

func (w *MarketWatcher) handleV2Mint(ctx context.Context, contractABI abi.ABI, lg types.Log) {
	out := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(out, "Mint", lg.Data); err != nil {
		return
	}
	ev := subscriber.V2MintEvent{
		Key:     w.key,
		Token0:  w.token0,
		Token1:  w.token1,
		Dec0:    w.dec0,
		Dec1:    w.dec1,
		Amount0: toBigInt(out["amount0"]),
		Amount1: toBigInt(out["amount1"]),
	}
	w.sub.HandleV2Mint(ctx, ev)
}

func (w *MarketWatcher) handleV3Swap(ctx context.Context, contractABI abi.ABI, lg types.Log) {
	if len(lg.Topics) < 3 {
		return
	}
	out := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(out, "Swap", lg.Data); err != nil {
		return
	}
	ev := subscriber.V3SwapEvent{
		Key:       w.key,
		Token0:    w.token0,
		Token1:    w.token1,
		Dec0:      w.dec0,
		Dec1:      w.dec1,
		Amount0:   toBigInt(out["amount0"]),
		Amount1:   toBigInt(out["amount1"]),
		Sender:    common.HexToAddress(lg.Topics[1].Hex()),
		Recipient: common.HexToAddress(lg.Topics[2].Hex()),
	}
	w.sub.HandleV3Swap(ctx, ev)
}

func toBigInt(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok {
		return b
	}
	return big.NewInt(0)
}

// DialWss dials a websocket RPC endpoint, matching the teacher's
// ethclient.Dial usage in cmd/main.go.
func DialWss(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return c, nil
}
