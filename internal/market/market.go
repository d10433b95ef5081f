// Package market defines the core data model shared across the detector:
// the chain/market-type tags, the Market record and its lifecycle, and the
// per-chain recognized base-token table (spec.md §3).
package market

import (
	"strings"
	"time"
)

// Chain identifies one of the two supported EVM chains.
type Chain string

const (
	ChainBSC Chain = "BSC"
	ChainETH Chain = "ETH"
)

// Type identifies the AMM design generation a pool belongs to.
type Type string

const (
	V2 Type = "v2"
	V3 Type = "v3"
)

// Status is a market's lifecycle state. Once Active or Rejected it is
// terminal for the lifetime of the process (spec.md §3 invariant).
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
)

// Key uniquely identifies a market by (chain, market_type, address), address
// normalized to lowercase hex per spec.md §3.
type Key struct {
	Chain   Chain
	Type    Type
	Address string
}

// NewKey normalizes address to lowercase hex and builds a Key.
func NewKey(chain Chain, typ Type, address string) Key {
	return Key{Chain: chain, Type: typ, Address: strings.ToLower(address)}
}

func (k Key) String() string {
	return string(k.Chain) + ":" + string(k.Type) + ":" + k.Address
}

// Metadata is the mutable side-bag carried on a Market entry: observed
// liquidity and last mint value, used by components that only hold the
// Key (spec.md §9: arena+key). Which side is the base/target token is
// never cached here — it's derived live from BaseTokenTable.IsBaseToken
// wherever it's needed, since the two sides never change after a market
// is registered but the table itself is the single source of truth.
type Metadata struct {
	LiquidityUsd float64
	LastMintUsd  float64
}

// Market is the full record owned exclusively by the Watchlist (spec.md §3).
// Other components hold only a Key and look the entry up when needed.
type Market struct {
	Key Key

	Token0 string
	Token1 string
	Fee    *uint32 // v3 only

	Status      Status
	Reason      string
	FirstSeen   time.Time
	LastUpdated time.Time

	Meta Metadata
}

// Candidate is what Ingress produces before a market exists in the
// Watchlist: the minimal shape needed to create or idempotently reuse an
// entry.
type Candidate struct {
	Chain  Chain
	Type   Type
	Address string
	Token0 string
	Token1 string
	Fee    *uint32

	// LiquidityUsdHint carries the aggregator's reported liquidity for
	// candidates sourced from trending (used as a gate fallback per
	// spec.md §4.2 and as an LP-risk-score input per §4.2 step 4).
	LiquidityUsdHint float64
}

func (c Candidate) Key() Key {
	return NewKey(c.Chain, c.Type, c.Address)
}
