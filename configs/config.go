// Package configs loads the detector's configuration: a static topology
// YAML file (chain endpoints, DEX contract addresses, base-token tables)
// plus strategy thresholds read from the process environment.
//
// Grounded on the teacher's configs/config.go (yaml.v3 unmarshal of a
// typed struct) and cmd/main.go (secrets via the process environment,
// optionally hydrated from a local .env file via godotenv).
package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

// ChainTopology is one chain's static, rarely-changed contract
// topology, loaded from YAML.
type ChainTopology struct {
	Slug          string          `yaml:"slug"`
	V2FactoryAddr string          `yaml:"v2Factory"`
	V2RouterAddr  string          `yaml:"v2Router"`
	V3FactoryAddr string          `yaml:"v3Factory"`
	V3QuoterAddr  string          `yaml:"v3Quoter"`
	DexFamilies   []string        `yaml:"dexFamilies"`
	BaseTokens    []BaseTokenYAML `yaml:"baseTokens"`
}

// BaseTokenYAML is one recognized base/quote token entry from YAML.
type BaseTokenYAML struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Priority int    `yaml:"priority"`
	Stable   bool   `yaml:"stable"`
}

// Topology is the full static config document (config.yml).
type Topology struct {
	Chains map[string]ChainTopology `yaml:"chains"`
}

// Strategy holds the tunable thresholds named in spec.md §6, read from
// the process environment with the documented defaults.
type Strategy struct {
	MinLiqUsd            float64
	BuyVol1mUsd          float64
	BuyTxs1m             int
	VolumeMultiplier     float64
	FdvMultiplier        float64
	WhaleSingleBuyUsd    float64
	WhaleLiquidityRatio  float64
	MaxActiveMarkets     int
	TrendingPollInterval time.Duration
	TrendingMinLiqUsd    float64
	TrendingTopK         int
	MaxTaxPct            float64
}

// Config is the fully resolved configuration handed to the composition root.
type Config struct {
	Topology Topology
	Strategy Strategy
	WssURLs  map[market.Chain]string // resolved from required env vars
}

// Load reads the optional YAML topology file at path, hydrates secrets
// from a local .env file (tolerating it being absent, matching the
// teacher's pattern), and resolves strategy thresholds and required
// WSS endpoints from the process environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional local override; absence is not an error

	var topo Topology
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("configs: read topology file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &topo); err != nil {
			return nil, fmt.Errorf("configs: parse topology YAML: %w", err)
		}
	}

	bscWss := os.Getenv("BSC_WSS")
	if bscWss == "" {
		return nil, fmt.Errorf("configs: BSC_WSS not set")
	}
	ethWss := os.Getenv("ETH_WSS")
	if ethWss == "" {
		return nil, fmt.Errorf("configs: ETH_WSS not set")
	}

	return &Config{
		Topology: topo,
		Strategy: loadStrategy(),
		WssURLs: map[market.Chain]string{
			market.ChainBSC: bscWss,
			market.ChainETH: ethWss,
		},
	}, nil
}

func loadStrategy() Strategy {
	return Strategy{
		MinLiqUsd:            envFloat("MIN_LIQ_USD", 5000),
		BuyVol1mUsd:          envFloat("BUY_VOL_1M_USD", 1000),
		BuyTxs1m:             envInt("BUY_TXS_1M", 3),
		VolumeMultiplier:     envFloat("VOLUME_MULTIPLIER", 3),
		FdvMultiplier:        envFloat("FDV_MULTIPLIER", 1.5),
		WhaleSingleBuyUsd:    envFloat("WHALE_SINGLE_BUY_USD", 5000),
		WhaleLiquidityRatio:  envFloat("WHALE_LIQUIDITY_RATIO", 0.03),
		MaxActiveMarkets:     envInt("MAX_ACTIVE_MARKETS", 500),
		TrendingPollInterval: time.Duration(envInt("TRENDING_POLL_INTERVAL_MS", 60000)) * time.Millisecond,
		TrendingMinLiqUsd:    envFloat("TRENDING_MIN_LIQ_USD", 5000),
		TrendingTopK:         envInt("TRENDING_TOP_K", 50),
		MaxTaxPct:            envFloat("MAX_TAX_PCT", 0.20),
	}
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// BaseTokenTable builds a market.BaseTokenTable from the loaded topology.
func (c *Config) BaseTokenTable() *market.BaseTokenTable {
	byChain := make(map[market.Chain][]market.BaseToken, len(c.Topology.Chains))
	for name, chainTopo := range c.Topology.Chains {
		chain := market.Chain(name)
		tokens := make([]market.BaseToken, 0, len(chainTopo.BaseTokens))
		for _, bt := range chainTopo.BaseTokens {
			tokens = append(tokens, market.BaseToken{
				Symbol:   bt.Symbol,
				Address:  bt.Address,
				Priority: bt.Priority,
				Stable:   bt.Stable,
			})
		}
		byChain[chain] = tokens
	}
	return market.NewBaseTokenTable(byChain)
}

// ChainSlugs builds the market.Chain -> aggregator chain-slug map from
// the loaded topology (e.g. "bsc", "ethereum").
func (c *Config) ChainSlugs() map[market.Chain]string {
	out := make(map[market.Chain]string, len(c.Topology.Chains))
	for name, chainTopo := range c.Topology.Chains {
		out[market.Chain(name)] = chainTopo.Slug
	}
	return out
}

// DexFamilyAllowlist builds the market.Chain -> allowed DEX family
// substrings map from the loaded topology (spec.md §4.1: "Pancake
// variants on BSC, Uniswap on ETH").
func (c *Config) DexFamilyAllowlist() map[market.Chain][]string {
	out := make(map[market.Chain][]string, len(c.Topology.Chains))
	for name, chainTopo := range c.Topology.Chains {
		out[market.Chain(name)] = chainTopo.DexFamilies
	}
	return out
}
