package genesis

import (
	"fmt"
	"sort"
	"strings"

	"bountyexchange/crypto"
	"bountyexchange/native/token"
)

// Apply registers every token and mints the allocations into registry.
// Tokens are registered in symbol order and allocations in address then symbol
// order so the resulting state is deterministic.
func Apply(spec *GenesisSpec, registry *token.Registry) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if registry == nil {
		return fmt.Errorf("token registry must not be nil")
	}

	tokens := append([]TokenSpec(nil), spec.Tokens...)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	for _, t := range tokens {
		_, err := registry.Register(token.Metadata{
			Address:  t.address,
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
		})
		if err != nil {
			return fmt.Errorf("register token %q: %w", t.Symbol, err)
		}
	}

	addresses := make([]string, 0, len(spec.Alloc))
	for addr := range spec.Alloc {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	for _, addrStr := range addresses {
		owner, err := crypto.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		balances := spec.Alloc[addrStr]
		symbols := make([]string, 0, len(balances))
		for symbol := range balances {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			amount, err := parseAmountString(balances[symbol])
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
			ledger, err := registry.BySymbol(strings.TrimSpace(symbol))
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
			if err := ledger.Mint(owner, amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
		}
	}
	return nil
}
