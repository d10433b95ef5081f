package market

import (
	"sort"
	"strings"
)

// BaseToken is one entry in a chain's recognized base/quote token table,
// carrying a priority used to break ties when both sides of a pool are
// base tokens (spec.md §4.5: "prefer the side whose base token is
// higher-priority").
type BaseToken struct {
	Symbol   string
	Address  string // lowercase hex
	Priority int    // lower is higher priority
	Stable   bool   // true for USDT/USDC/DAI/BUSD-style stablecoins
}

// BaseTokenTable is the immutable, closed per-chain set described in
// spec.md §3. It is built once at composition-root time and then passed
// into every collaborator that needs it (spec.md §9: ambient mutable
// singletons should become explicit collaborators) — there is no package-
// level mutable state here.
type BaseTokenTable struct {
	byChain map[Chain][]BaseToken
}

// NewBaseTokenTable builds an immutable table from a per-chain token list,
// lowercasing each address and ordering each chain's list by Priority.
func NewBaseTokenTable(byChain map[Chain][]BaseToken) *BaseTokenTable {
	t := &BaseTokenTable{byChain: make(map[Chain][]BaseToken, len(byChain))}
	for chain, tokens := range byChain {
		cp := make([]BaseToken, len(tokens))
		copy(cp, tokens)
		for i := range cp {
			cp[i].Address = strings.ToLower(cp[i].Address)
		}
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].Priority < cp[j].Priority })
		t.byChain[chain] = cp
	}
	return t
}

// For returns the ordered (highest priority first) base-token table for
// chain.
func (t *BaseTokenTable) For(chain Chain) []BaseToken {
	return t.byChain[chain]
}

// Lookup returns the BaseToken entry for address on chain, if recognized.
func (t *BaseTokenTable) Lookup(chain Chain, address string) (BaseToken, bool) {
	address = strings.ToLower(address)
	for _, bt := range t.byChain[chain] {
		if bt.Address == address {
			return bt, true
		}
	}
	return BaseToken{}, false
}

// IsBaseToken reports whether address is a recognized base token on chain.
func (t *BaseTokenTable) IsBaseToken(chain Chain, address string) bool {
	_, ok := t.Lookup(chain, address)
	return ok
}

// DefaultSymbols returns the standard symbol set spec.md §3 names for
// chain, with addresses left blank. Nothing in this repository calls it:
// configs.Load builds the table from the addresses in the topology file.
func DefaultSymbols(chain Chain) []BaseToken {
	wrapped := "WETH"
	if chain == ChainBSC {
		wrapped = "WBNB"
	}
	return []BaseToken{
		{Symbol: wrapped, Priority: 0, Stable: false},
		{Symbol: "USDT", Priority: 1, Stable: true},
		{Symbol: "USDC", Priority: 2, Stable: true},
		{Symbol: "DAI", Priority: 3, Stable: true},
		{Symbol: "BUSD", Priority: 4, Stable: true},
	}
}
