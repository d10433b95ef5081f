package configs

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

const testTopologyYAML = `
chains:
  BSC:
    slug: bsc
    v2Factory: "0xfactory"
    v2Router: "0xrouter"
    dexFamilies: ["pancakeswap"]
    baseTokens:
      - symbol: WBNB
        address: "0xbnb"
        priority: 0
      - symbol: USDT
        address: "0xusdt"
        priority: 1
        stable: true
`

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		old, had := os.LookupEnv(k)
		os.Setenv(k, v)
		defer func(k, old string, had bool) {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		}(k, old, had)
	}
	fn()
}

func TestLoadRequiresWssEnvVars(t *testing.T) {
	withEnv(t, map[string]string{"BSC_WSS": "", "ETH_WSS": ""}, func() {
		os.Unsetenv("BSC_WSS")
		os.Unsetenv("ETH_WSS")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestLoadResolvesStrategyDefaults(t *testing.T) {
	withEnv(t, map[string]string{"BSC_WSS": "wss://bsc", "ETH_WSS": "wss://eth"}, func() {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 5000.0, cfg.Strategy.MinLiqUsd)
		assert.Equal(t, 60*time.Second, cfg.Strategy.TrendingPollInterval)
		assert.Equal(t, "wss://bsc", cfg.WssURLs[market.ChainBSC])
	})
}

func TestLoadResolvesStrategyOverrides(t *testing.T) {
	withEnv(t, map[string]string{
		"BSC_WSS":      "wss://bsc",
		"ETH_WSS":      "wss://eth",
		"MIN_LIQ_USD":  "9000",
		"BUY_TXS_1M":   "5",
	}, func() {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 9000.0, cfg.Strategy.MinLiqUsd)
		assert.Equal(t, 5, cfg.Strategy.BuyTxs1m)
	})
}

func TestLoadParsesTopologyYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yml"
	require.NoError(t, os.WriteFile(path, []byte(testTopologyYAML), 0o644))

	withEnv(t, map[string]string{"BSC_WSS": "wss://bsc", "ETH_WSS": "wss://eth"}, func() {
		cfg, err := Load(path)
		require.NoError(t, err)

		table := cfg.BaseTokenTable()
		assert.True(t, table.IsBaseToken(market.ChainBSC, "0xbnb"))

		slugs := cfg.ChainSlugs()
		assert.Equal(t, "bsc", slugs[market.ChainBSC])

		allow := cfg.DexFamilyAllowlist()
		assert.Contains(t, allow[market.ChainBSC], "pancakeswap")
	})
}
