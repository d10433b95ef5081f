package chain

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/dexsentinel/internal/chainio"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/subscriber"
)

type fakeSub struct {
	errCh chan error
}

func (f *fakeSub) Unsubscribe()      {}
func (f *fakeSub) Err() <-chan error { return f.errCh }

type fakeSource struct {
	ch chan types.Log
}

func (f *fakeSource) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	go func() {
		for lg := range f.ch {
			select {
			case ch <- lg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &fakeSub{errCh: make(chan error)}, nil
}

func topicAddr(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func packPairCreated(t *testing.T, pair common.Address) []byte {
	t.Helper()
	out, err := chainio.V2FactoryABI().Events["PairCreated"].Inputs.NonIndexed().Pack(pair, big.NewInt(1))
	require.NoError(t, err)
	return out
}

func packPoolCreated(t *testing.T, tickSpacing int32, pool common.Address) []byte {
	t.Helper()
	out, err := chainio.V3FactoryABI().Events["PoolCreated"].Inputs.NonIndexed().Pack(tickSpacing, pool)
	require.NoError(t, err)
	return out
}

func packV2Swap(t *testing.T, a0in, a1in, a0out, a1out *big.Int) []byte {
	t.Helper()
	out, err := chainio.V2PairABI().Events["Swap"].Inputs.NonIndexed().Pack(a0in, a1in, a0out, a1out)
	require.NoError(t, err)
	return out
}

func TestFactoryWatcherDecodesV2PairCreated(t *testing.T) {
	src := &fakeSource{ch: make(chan types.Log, 1)}
	w := NewV2FactoryWatcher(src, market.ChainBSC, common.HexToAddress("0xfacfac0000000000000000000000000000fac1"))

	token0 := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	pair := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccc1")

	event := chainio.V2FactoryABI().Events["PairCreated"]
	lg := types.Log{
		Topics: []common.Hash{event.ID, topicAddr(token0), topicAddr(token1)},
		Data:   packPairCreated(t, pair),
	}

	var got []market.Candidate
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(c market.Candidate) {
			got = append(got, c)
			cancel()
		})
	}()

	src.ch <- lg
	<-ctx.Done()
	require.NoError(t, <-done)

	require.Len(t, got, 1)
	assert.Equal(t, market.V2, got[0].Type)
	assert.Equal(t, market.ChainBSC, got[0].Chain)
	assert.Equal(t, token0.Hex(), got[0].Token0)
	assert.Equal(t, token1.Hex(), got[0].Token1)
}

func TestFactoryWatcherDecodesV3PoolCreated(t *testing.T) {
	src := &fakeSource{ch: make(chan types.Log, 1)}
	w := NewV3FactoryWatcher(src, market.ChainETH, common.HexToAddress("0xfacfac0000000000000000000000000000fac2"))

	token0 := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	pool := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccc2")
	feeHash := common.BigToHash(big.NewInt(3000))

	event := chainio.V3FactoryABI().Events["PoolCreated"]
	lg := types.Log{
		Topics: []common.Hash{event.ID, topicAddr(token0), topicAddr(token1), feeHash},
		Data:   packPoolCreated(t, 60, pool),
	}

	var got []market.Candidate
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(c market.Candidate) {
			got = append(got, c)
			cancel()
		})
	}()

	src.ch <- lg
	<-ctx.Done()
	require.NoError(t, <-done)

	require.Len(t, got, 1)
	assert.Equal(t, market.V3, got[0].Type)
	require.NotNil(t, got[0].Fee)
	assert.Equal(t, uint32(3000), *got[0].Fee)
}

func TestFactoryWatcherStopsOnContextCancel(t *testing.T) {
	src := &fakeSource{ch: make(chan types.Log)}
	w := NewV2FactoryWatcher(src, market.ChainBSC, common.HexToAddress("0xfacfac0000000000000000000000000000fac3"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, func(market.Candidate) {}) }()

	cancel()
	require.NoError(t, <-done)
}

func TestMarketWatcherDecodesV2Swap(t *testing.T) {
	key := market.NewKey(market.ChainBSC, market.V2, "0xpa12pa120000000000000000000000000000001")
	sub := newDecodeOnlySubscriber()
	src := &fakeSource{ch: make(chan types.Log, 1)}
	w := NewMarketWatcher(src, key, "0xwbnb0000000000000000000000000000000001", "0xtoken000000000000000000000000000000001", 18, 18, sub)

	ctx, cancel := context.WithCancel(context.Background())
	stop, err := w.Start(ctx)
	require.NoError(t, err)
	defer stop()

	sender := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	event := chainio.V2PairABI().Events["Swap"]
	lg := types.Log{
		Topics: []common.Hash{event.ID, topicAddr(sender), topicAddr(to)},
		Data:   packV2Swap(t, big.NewInt(0), big.NewInt(1_000000000000000000), big.NewInt(500), big.NewInt(0)),
	}

	src.ch <- lg
	sub.wait(t)
	cancel()

	assert.Equal(t, 1, sub.swapCalls)
}

// decodeOnlySubscriber is a minimal stand-in exercising MarketWatcher's
// decode-and-forward path without depending on subscriber.Subscriber's
// full collaborator graph.
type decodeOnlySubscriber struct {
	mu        sync.Mutex
	swapCalls int
	notify    chan struct{}
}

func newDecodeOnlySubscriber() *decodeOnlySubscriber {
	return &decodeOnlySubscriber{notify: make(chan struct{}, 8)}
}

func (d *decodeOnlySubscriber) HandleV2Swap(ctx context.Context, ev subscriber.V2SwapEvent) {
	d.mu.Lock()
	d.swapCalls++
	d.mu.Unlock()
	d.notify <- struct{}{}
}

func (d *decodeOnlySubscriber) HandleV2Mint(ctx context.Context, ev subscriber.V2MintEvent) (float64, bool) {
	d.notify <- struct{}{}
	return 0, false
}

func (d *decodeOnlySubscriber) HandleV3Swap(ctx context.Context, ev subscriber.V3SwapEvent) {
	d.mu.Lock()
	d.swapCalls++
	d.mu.Unlock()
	d.notify <- struct{}{}
}

func (d *decodeOnlySubscriber) wait(t *testing.T) {
	t.Helper()
	select {
	case <-d.notify:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a decode callback")
	}
}
