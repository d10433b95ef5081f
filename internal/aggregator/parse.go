package aggregator

import "encoding/json"

// rawPairsResponse mirrors the aggregator's untyped JSON shape. Only the
// fields spec.md §6 names are read; everything else is ignored. The
// aggregator responds with either a `pairs` array or a single `pair`
// object depending on endpoint, and uses `chainId` on some endpoints and
// `chain` on others — both are tolerated.
type rawPairsResponse struct {
	Pairs []rawPair `json:"pairs"`
	Pair  *rawPair  `json:"pair"`
}

type rawPair struct {
	ChainID     string          `json:"chainId"`
	Chain       string          `json:"chain"`
	DexID       string          `json:"dexId"`
	PairAddress string          `json:"pairAddress"`
	BaseToken   rawTokenRef     `json:"baseToken"`
	QuoteToken  rawTokenRef     `json:"quoteToken"`
	PriceUsd    json.Number     `json:"priceUsd"`
	Liquidity   rawLiquidity    `json:"liquidity"`
	Txns        rawTxns         `json:"txns"`
	FeeTier     json.RawMessage `json:"feeTier"`
	Fee         json.RawMessage `json:"fee"`
}

type rawTokenRef struct {
	Address string `json:"address"`
}

type rawLiquidity struct {
	Usd json.Number `json:"usd"`
}

type rawTxnWindow struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type rawTxns struct {
	M5 rawTxnWindow `json:"m5"`
	H1 rawTxnWindow `json:"h1"`
}

func (r rawPairsResponse) pairs() []Pair {
	var raws []rawPair
	if r.Pair != nil {
		raws = append(raws, *r.Pair)
	}
	raws = append(raws, r.Pairs...)

	out := make([]Pair, 0, len(raws))
	for _, rp := range raws {
		out = append(out, rp.toPair())
	}
	return out
}

func (rp rawPair) toPair() Pair {
	chainID := rp.ChainID
	if chainID == "" {
		chainID = rp.Chain
	}
	feeTier := string(rp.FeeTier)
	if feeTier == "" || feeTier == "null" {
		feeTier = string(rp.Fee)
	}
	price, _ := rp.PriceUsd.Float64()
	liq, _ := rp.Liquidity.Usd.Float64()

	return Pair{
		ChainID:           chainID,
		DexID:             rp.DexID,
		PairAddress:       rp.PairAddress,
		BaseTokenAddress:  rp.BaseToken.Address,
		QuoteTokenAddress: rp.QuoteToken.Address,
		PriceUsd:          price,
		LiquidityUsd:      liq,
		FeeTier:           trimJSONQuotes(feeTier),
		TxnsM5Buys:        rp.Txns.M5.Buys,
		TxnsM5Sells:       rp.Txns.M5.Sells,
		TxnsH1Buys:        rp.Txns.H1.Buys,
		TxnsH1Sells:       rp.Txns.H1.Sells,
	}
}

func trimJSONQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
