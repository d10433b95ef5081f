// Command dexsentinel is the composition root: it wires every package
// under internal/ into one running process per spec.md §1-§9 — Ingress
// discovers candidates, the Gate Pipeline admits or rejects them, and
// MarketSubscriber streams trade events for active markets into
// WindowStore/TaxEstimator/AlertEvaluator.
//
// Boot sequence mirrors the teacher's main.go: load config, dial chain
// RPCs, wire collaborators bottom-up, start the Prometheus endpoint,
// then run until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dexsentinel/dexsentinel/configs"
	"github.com/dexsentinel/dexsentinel/internal/aggregator"
	"github.com/dexsentinel/dexsentinel/internal/alert"
	"github.com/dexsentinel/dexsentinel/internal/chain"
	"github.com/dexsentinel/dexsentinel/internal/fdv"
	"github.com/dexsentinel/dexsentinel/internal/gate"
	"github.com/dexsentinel/dexsentinel/internal/ingress"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/notifier"
	"github.com/dexsentinel/dexsentinel/internal/oracle"
	"github.com/dexsentinel/dexsentinel/internal/safety"
	"github.com/dexsentinel/dexsentinel/internal/store"
	"github.com/dexsentinel/dexsentinel/internal/subscriber"
	"github.com/dexsentinel/dexsentinel/internal/tax"
	"github.com/dexsentinel/dexsentinel/internal/watchlist"
	"github.com/dexsentinel/dexsentinel/internal/window"
)

func main() {
	cfg, err := configs.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ethClients := make(map[market.Chain]*ethclient.Client)
	for chainName, url := range cfg.WssURLs {
		c, err := chain.DialWss(context.Background(), url)
		if err != nil {
			log.Fatalf("dial %s: %v", chainName, err)
		}
		ethClients[chainName] = c
	}

	tokens := cfg.BaseTokenTable()
	wl := watchlist.New()
	windows := window.New()
	fdvTracker := fdv.New()
	taxEstimator := tax.New()
	agg := aggregator.New(aggregatorBaseURL())
	priceOracle := oracle.New(agg, tokens)
	probes := safety.New(tokens)
	probes.MinLiqUsd = cfg.Strategy.MinLiqUsd
	probes.MaxTaxPct = cfg.Strategy.MaxTaxPct
	pipeline := gate.New(wl, probes)
	logNotifier := notifier.NewLogNotifier(log.New(log.Writer(), "[dexsentinel] ", log.LstdFlags))

	th := alert.DefaultThresholds()
	th.BuyVol1mUsd = cfg.Strategy.BuyVol1mUsd
	th.BuyTxs1m = cfg.Strategy.BuyTxs1m
	th.VolumeMultiplier = cfg.Strategy.VolumeMultiplier
	th.FdvMultiplier = cfg.Strategy.FdvMultiplier
	th.WhaleSingleBuyUsd = cfg.Strategy.WhaleSingleBuyUsd
	th.WhaleLiquidityRatio = cfg.Strategy.WhaleLiquidityRatio
	evaluator := alert.New(windows, fdvTracker, logNotifier, th)

	reservesReaders := make(map[market.Chain]*chain.ReservesReader)
	for chainName, eth := range ethClients {
		reservesReaders[chainName] = chain.NewReservesReader(eth)
	}

	pricer := oracle.NewReservesPricer(priceOracle, wl, multiChainReader{readers: reservesReaders}, tokens)
	sub := subscriber.New(windows, taxEstimator, evaluator, tokens, pricer, pricer)

	var recorder *store.Recorder
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		recorder, err = store.NewRecorder(dsn)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer recorder.Close()
	}

	deps := &composition{
		cfg:             cfg,
		eth:             ethClients,
		tokens:          tokens,
		wl:              wl,
		oracle:          priceOracle,
		taxEstimator:    taxEstimator,
		pipeline:        pipeline,
		reservesReaders: reservesReaders,
		recorder:        recorder,
		marketWatchers:  make(map[market.Key]func()),
	}

	factories := deps.buildFactoryWatchers()

	ingressCfg := ingress.Config{
		Chains:               chainList(cfg.Topology),
		ChainSlug:            cfg.ChainSlugs(),
		DexFamilyAllowlist:   cfg.DexFamilyAllowlist(),
		TrendingPollInterval: cfg.Strategy.TrendingPollInterval,
		TrendingTopK:         cfg.Strategy.TrendingTopK,
		TrendingMinLiqUsd:    cfg.Strategy.TrendingMinLiqUsd,
		MaxActiveMarkets:     cfg.Strategy.MaxActiveMarkets,
	}

	ing := ingress.New(wl, tokens, agg, factories, ingressCfg, func(c market.Candidate) {
		deps.onNewCandidate(ing, sub, c)
	}, log.New(log.Writer(), "[ingress] ", log.LstdFlags))
	deps.ingress = ing
	ing.SetOnEvict(deps.onEvictedMarket)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: metricsAddr(), Handler: mux}
	go func() {
		log.Printf("serving metrics on %s/metrics", metricsAddr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ing.Run(ctx); err != nil {
		log.Printf("ingress stopped: %v", err)
	}

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

func aggregatorBaseURL() string {
	if v := os.Getenv("AGGREGATOR_BASE_URL"); v != "" {
		return v
	}
	return "https://api.dexscreener.com"
}

func metricsAddr() string {
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		return v
	}
	return ":9090"
}

func chainList(topo configs.Topology) []market.Chain {
	out := make([]market.Chain, 0, len(topo.Chains))
	for name := range topo.Chains {
		out = append(out, market.Chain(name))
	}
	return out
}

// multiChainReader dispatches oracle.ChainReader calls to the reader
// registered for a key's chain.
type multiChainReader struct {
	readers map[market.Chain]*chain.ReservesReader
}

func (m multiChainReader) V2Reserves(ctx context.Context, key market.Key) (*big.Int, *big.Int, error) {
	r, ok := m.readers[key.Chain]
	if !ok {
		return nil, nil, fmt.Errorf("no reserves reader for chain %s", key.Chain)
	}
	return r.V2Reserves(ctx, key)
}

func (m multiChainReader) V3SqrtPriceX96(ctx context.Context, key market.Key) (*big.Int, error) {
	r, ok := m.readers[key.Chain]
	if !ok {
		return nil, fmt.Errorf("no reserves reader for chain %s", key.Chain)
	}
	return r.V3SqrtPriceX96(ctx, key)
}

func (m multiChainReader) TokenDecimals(ctx context.Context, chainName market.Chain, token string) (int, error) {
	r, ok := m.readers[chainName]
	if !ok {
		return 18, fmt.Errorf("no reserves reader for chain %s", chainName)
	}
	return r.TokenDecimals(ctx, chainName, token)
}
