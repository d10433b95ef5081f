package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestTokenPairsParsesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/0xmeme", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pairs":[{"chainId":"bsc","dexId":"pancakeswap","pairAddress":"0xpair","baseToken":{"address":"0xmeme"},"quoteToken":{"address":"0xweth"},"priceUsd":"1.50","liquidity":{"usd":120000},"txns":{"m5":{"buys":3,"sells":1},"h1":{"buys":40,"sells":10}},"feeTier":"3000"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	pairs, err := c.TokenPairs(context.Background(), "0xmeme")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	p := pairs[0]
	assert.Equal(t, "bsc", p.ChainID)
	assert.Equal(t, 1.5, p.PriceUsd)
	assert.Equal(t, 120000.0, p.LiquidityUsd)
	assert.Equal(t, 3, p.TxnsM5Buys)
	assert.Equal(t, "3000", p.FeeTier)
}

func TestPairReturnsNotFoundWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, ok, err := c.Pair(context.Background(), "bsc", "0xpair")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetJSONRetriesOnTransientStatusThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"pairs":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.limiter.SetLimit(rate.Limit(1000))
	_, err := c.TokenPairs(context.Background(), "0xmeme")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestGetJSONFailsPermanentlyOnNon5xxError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.TokenPairs(context.Background(), "0xmeme")
	assert.Error(t, err)
}
