// Package aggregator is the HTTP client for the external market
// aggregator (spec.md §6): trending discovery, per-pair/per-token USD
// price and liquidity, used as a fallback source by PriceOracle and as
// the primary source for trending-based ingress (C9).
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 7 * time.Second
	maxRetries       = 2 // retries after the first request: 3 attempts in all
	retryBaseDelay   = 400 * time.Millisecond
	retryJitter      = 150 * time.Millisecond
	defaultRateLimit = 5 // requests per second
)

// Pair is the subset of an aggregator pair record the detector reads
// (spec.md §6): only {pairs[], pair, chainId/chain, priceUsd,
// liquidity.usd, txns.m5|h1.{buys,sells}, pairAddress,
// baseToken.address, quoteToken.address, dexId, feeTier|fee}.
type Pair struct {
	ChainID           string
	DexID             string
	PairAddress       string
	BaseTokenAddress  string
	QuoteTokenAddress string
	PriceUsd          float64
	LiquidityUsd      float64
	FeeTier           string
	TxnsM5Buys        int
	TxnsM5Sells       int
	TxnsH1Buys        int
	TxnsH1Sells       int
}

// Client talks to the external market aggregator over HTTP.
type Client struct {
	baseURL string
	hc      *http.Client
	limiter *rate.Limiter
}

// New builds a Client against baseURL (e.g. "https://api.dexscreener.com").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateLimit),
	}
}

// TokenPairs calls GET /latest/dex/tokens/{token}.
func (c *Client) TokenPairs(ctx context.Context, token string) ([]Pair, error) {
	var raw rawPairsResponse
	path := fmt.Sprintf("/latest/dex/tokens/%s", url.PathEscape(token))
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	return raw.pairs(), nil
}

// Pair calls GET /latest/dex/pairs/{chainSlug}/{pairAddress}.
func (c *Client) Pair(ctx context.Context, chainSlug, pairAddress string) (Pair, bool, error) {
	var raw rawPairsResponse
	path := fmt.Sprintf("/latest/dex/pairs/%s/%s", url.PathEscape(chainSlug), url.PathEscape(pairAddress))
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return Pair{}, false, err
	}
	pairs := raw.pairs()
	if len(pairs) == 0 {
		return Pair{}, false, nil
	}
	return pairs[0], true, nil
}

// Trending calls GET /latest/dex/trending?chain={slug}&limit={k}. A
// non-2xx or malformed response is returned as an error so callers can
// fall back to the top-pools-of-each-base-token synthesis described in
// spec.md §6.
func (c *Client) Trending(ctx context.Context, chainSlug string, limit int) ([]Pair, error) {
	var raw rawPairsResponse
	path := fmt.Sprintf("/latest/dex/trending?chain=%s&limit=%d", url.QueryEscape(chainSlug), limit)
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	return raw.pairs(), nil
}

// getJSON issues a GET against path, retrying on 403/429/5xx with
// exponential backoff for at most 3 attempts in all (spec.md §5: base
// 400ms + <=150ms jitter, doubling).
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("aggregator: rate limiter: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseDelay
	bo.RandomizationFactor = float64(retryJitter) / float64(retryBaseDelay)
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(bo, maxRetries)

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("aggregator: build request: %w", err))
		}
		req.Header.Set("User-Agent", "dexsentinel/aggregator")

		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("aggregator: request %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("aggregator: transient status %d on %s", resp.StatusCode, path)
		}
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("aggregator: status %d on %s: %s", resp.StatusCode, path, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("aggregator: read body: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
