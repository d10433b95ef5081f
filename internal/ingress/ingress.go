// Package ingress implements Ingress (C9, spec.md §4.1): it merges a
// factory-event source and a trending-poller source into one candidate
// stream, applies the trending filters, and enforces the process-wide
// subscription slot budget.
package ingress

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dexsentinel/dexsentinel/internal/aggregator"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/watchlist"
)

const (
	defaultTrendingInterval = 60 * time.Second
	defaultTrendingTopK     = 50
	dedupTTL                = 5 * time.Minute
	idleSweepInterval       = 1 * time.Minute
)

var hexAddressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// TrendingClient is the narrow aggregator surface Ingress needs.
type TrendingClient interface {
	Trending(ctx context.Context, chainSlug string, limit int) ([]aggregator.Pair, error)
}

// FactoryWatcher watches one (chain, DEX family) factory for
// PairCreated/PoolCreated events and calls emit for each decoded
// candidate. Watch blocks until ctx is canceled or an unrecoverable
// transport error occurs.
type FactoryWatcher interface {
	Watch(ctx context.Context, emit func(market.Candidate)) error
}

// Config is the tunable Ingress behavior (spec.md §6 env vars).
type Config struct {
	Chains               []market.Chain
	ChainSlug            map[market.Chain]string // e.g. BSC -> "bsc", ETH -> "ethereum"
	DexFamilyAllowlist   map[market.Chain][]string
	TrendingPollInterval time.Duration
	TrendingTopK         int
	TrendingMinLiqUsd    float64
	MaxActiveMarkets     int
}

func (c Config) withDefaults() Config {
	if c.TrendingPollInterval <= 0 {
		c.TrendingPollInterval = defaultTrendingInterval
	}
	if c.TrendingTopK <= 0 {
		c.TrendingTopK = defaultTrendingTopK
	}
	return c
}

// Ingress owns the candidate-discovery sources and the slot budget.
type Ingress struct {
	wl        *watchlist.Watchlist
	tokens    *market.BaseTokenTable
	agg       TrendingClient
	factories []FactoryWatcher
	cfg       Config
	onNew     func(market.Candidate)
	onEvict   func(market.Key)
	logger    *log.Logger

	dedupMu sync.Mutex
	dedup   map[string]time.Time

	slotsMu   sync.Mutex
	slotsUsed int
	held      map[market.Key]struct{}

	now func() time.Time
}

// New builds an Ingress. onNew is called once, synchronously, for every
// candidate that is newly registered in the Watchlist (i.e. not a
// duplicate) — the composition root wires this to kick off the Gate
// Pipeline for the new entry.
func New(wl *watchlist.Watchlist, tokens *market.BaseTokenTable, agg TrendingClient, factories []FactoryWatcher, cfg Config, onNew func(market.Candidate), logger *log.Logger) *Ingress {
	if logger == nil {
		logger = log.Default()
	}
	return &Ingress{
		wl:        wl,
		tokens:    tokens,
		agg:       agg,
		factories: factories,
		cfg:       cfg.withDefaults(),
		onNew:     onNew,
		logger:    logger,
		dedup:     make(map[string]time.Time),
		held:      make(map[market.Key]struct{}),
		now:       time.Now,
	}
}

// Run supervises the factory watchers, the trending pollers (one per
// configured chain), and the idle sweeper as one cancelable unit
// (spec.md §9 ambient-stack guidance: errgroup over ad hoc goroutines).
func (ig *Ingress) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, fw := range ig.factories {
		fw := fw
		g.Go(func() error {
			ig.runFactory(ctx, fw)
			return nil
		})
	}
	for _, chain := range ig.cfg.Chains {
		chain := chain
		g.Go(func() error {
			ig.runTrendingPoller(ctx, chain)
			return nil
		})
	}
	g.Go(func() error {
		ig.runIdleSweeper(ctx)
		return nil
	})

	return g.Wait()
}

// runFactory blocks on fw.Watch, logging and returning (not retrying) on
// error: spec.md §4.1 places self-recovery at the transport layer, out
// of scope here.
func (ig *Ingress) runFactory(ctx context.Context, fw FactoryWatcher) {
	if err := fw.Watch(ctx, ig.admitFactoryCandidate); err != nil && ctx.Err() == nil {
		ig.logger.Printf("factory watcher stopped: %v", err)
	}
}

func (ig *Ingress) admitFactoryCandidate(c market.Candidate) {
	ig.admit(c)
}

// runTrendingPoller polls chain's trending pairs every TrendingPollInterval.
func (ig *Ingress) runTrendingPoller(ctx context.Context, chain market.Chain) {
	ticker := time.NewTicker(ig.cfg.TrendingPollInterval)
	defer ticker.Stop()

	for {
		ig.pollTrendingOnce(ctx, chain)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (ig *Ingress) pollTrendingOnce(ctx context.Context, chain market.Chain) {
	slug := ig.cfg.ChainSlug[chain]
	pairs, err := ig.agg.Trending(ctx, slug, ig.cfg.TrendingTopK)
	if err != nil {
		ig.logger.Printf("trending poll failed for %s: %v", chain, err)
		return
	}
	for _, p := range pairs {
		if c, ok := ig.filterTrendingPair(chain, p); ok {
			ig.admit(c)
		}
	}
}

// filterTrendingPair applies spec.md §4.1's 5-step trending filter.
func (ig *Ingress) filterTrendingPair(chain market.Chain, p aggregator.Pair) (market.Candidate, bool) {
	if !dexFamilyAllowed(ig.cfg.DexFamilyAllowlist[chain], p.DexID) {
		return market.Candidate{}, false
	}
	if !hexAddressRE.MatchString(p.PairAddress) || !hexAddressRE.MatchString(p.BaseTokenAddress) || !hexAddressRE.MatchString(p.QuoteTokenAddress) {
		return market.Candidate{}, false
	}
	if p.LiquidityUsd < ig.cfg.TrendingMinLiqUsd {
		return market.Candidate{}, false
	}
	if !ig.tokens.IsBaseToken(chain, p.BaseTokenAddress) && !ig.tokens.IsBaseToken(chain, p.QuoteTokenAddress) {
		return market.Candidate{}, false
	}
	if ig.seenRecently(chain, p.PairAddress) {
		return market.Candidate{}, false
	}

	typ := market.V2
	if strings.Contains(strings.ToLower(p.DexID), "v3") {
		typ = market.V3
	}
	return market.Candidate{
		Chain:            chain,
		Type:             typ,
		Address:          p.PairAddress,
		Token0:           p.BaseTokenAddress,
		Token1:           p.QuoteTokenAddress,
		LiquidityUsdHint: p.LiquidityUsd,
	}, true
}

func dexFamilyAllowed(allow []string, dexID string) bool {
	dexID = strings.ToLower(dexID)
	for _, a := range allow {
		if strings.Contains(dexID, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

func (ig *Ingress) seenRecently(chain market.Chain, pairAddress string) bool {
	key := string(chain) + ":" + strings.ToLower(pairAddress)
	now := ig.now()

	ig.dedupMu.Lock()
	defer ig.dedupMu.Unlock()

	if expiry, ok := ig.dedup[key]; ok && now.Before(expiry) {
		return true
	}
	ig.dedup[key] = now.Add(dedupTTL)
	return false
}

// admit idempotently registers c in the Watchlist and fires onNew for
// genuinely new entries.
func (ig *Ingress) admit(c market.Candidate) {
	_, created := ig.wl.Register(c)
	if created && ig.onNew != nil {
		ig.onNew(c)
	}
}

// TryAcquireSlot grants key a subscription slot if the budget allows it
// (spec.md §4.1: "registered in the Watchlist but NOT subscribed" once
// exhausted).
func (ig *Ingress) TryAcquireSlot(key market.Key) bool {
	ig.slotsMu.Lock()
	defer ig.slotsMu.Unlock()

	if _, already := ig.held[key]; already {
		return true
	}
	if ig.slotsUsed >= ig.cfg.MaxActiveMarkets {
		ig.logger.Printf("slot budget exhausted (%d/%d): %s stays unsubscribed", ig.slotsUsed, ig.cfg.MaxActiveMarkets, key)
		return false
	}
	ig.held[key] = struct{}{}
	ig.slotsUsed++
	return true
}

// ReleaseSlot frees key's slot, if it holds one. No-op otherwise.
func (ig *Ingress) ReleaseSlot(key market.Key) {
	ig.slotsMu.Lock()
	defer ig.slotsMu.Unlock()
	if _, ok := ig.held[key]; ok {
		delete(ig.held, key)
		ig.slotsUsed--
	}
}

// SetOnEvict registers a callback fired once per key after the idle
// sweeper releases its slot — the composition root uses this to stop
// that market's MarketWatcher subscription.
func (ig *Ingress) SetOnEvict(fn func(market.Key)) {
	ig.onEvict = fn
}

// SlotsUsed reports the current slot usage, mainly for metrics.
func (ig *Ingress) SlotsUsed() int {
	ig.slotsMu.Lock()
	defer ig.slotsMu.Unlock()
	return ig.slotsUsed
}

// runIdleSweeper periodically evicts idle Watchlist entries and releases
// any slot they held, so the reclaimed budget can serve new candidates
// (spec.md §5).
func (ig *Ingress) runIdleSweeper(ctx context.Context) {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range ig.wl.SweepIdle() {
				ig.ReleaseSlot(key)
				if ig.onEvict != nil {
					ig.onEvict(key)
				}
			}
		}
	}
}
