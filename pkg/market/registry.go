package market

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenRegistry holds static token metadata (symbol, decimals, flags) in a thread-safe manner.
// Prices are not stored here; Snapshot merges them in per refresh.
type TokenRegistry struct {
	mu            sync.RWMutex
	tokens        map[common.Address]TokenInfo // address -> token (native under NativeToken)
	wrappedNative common.Address
}

// NewTokenRegistry creates an empty registry
func NewTokenRegistry(wrappedNative common.Address) *TokenRegistry {
	return &TokenRegistry{
		tokens:        make(map[common.Address]TokenInfo),
		wrappedNative: wrappedNative,
	}
}

// RegisterToken adds a token.
// Returns error if a token with the same address already exists
func (tr *TokenRegistry) RegisterToken(t TokenInfo) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("cannot register token: %w", err)
	}
	if t.IsNative && t.Address != NativeToken {
		return fmt.Errorf("native token %s must use the zero address", t.Symbol)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if existing, exists := tr.tokens[t.Address]; exists {
		return fmt.Errorf("token %s already registered as %s", t.Address.Hex(), existing.Symbol)
	}

	tr.tokens[t.Address] = t
	return nil
}

// GetToken retrieves token metadata by address
func (tr *TokenRegistry) GetToken(addr common.Address) (TokenInfo, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	t, exists := tr.tokens[addr]
	if !exists {
		return TokenInfo{}, fmt.Errorf("token %s not found", addr.Hex())
	}
	return t, nil
}

// ListTokens returns all registered tokens sorted by symbol
func (tr *TokenRegistry) ListTokens() []TokenInfo {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	out := make([]TokenInfo, 0, len(tr.tokens))
	for _, t := range tr.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// WrappedNative returns the address of the wrapped native token (e.g. WETH)
func (tr *TokenRegistry) WrappedNative() common.Address {
	return tr.wrappedNative
}

// PriceAddress maps a token to the address the Vault prices it under.
// The native token is priced as its wrapped form.
func (tr *TokenRegistry) PriceAddress(addr common.Address) common.Address {
	if addr == NativeToken {
		return tr.wrappedNative
	}
	return addr
}

// Count returns the number of registered tokens
func (tr *TokenRegistry) Count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.tokens)
}

// Snapshot builds a Tokens map from registry metadata and Vault prices keyed by price address.
// Tokens without a price entry are included without bounds.
func (tr *TokenRegistry) Snapshot(prices map[common.Address][2]*big.Int) Tokens {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	out := make(Tokens, len(tr.tokens))
	for addr, t := range tr.tokens {
		priceAddr := addr
		if addr == NativeToken {
			priceAddr = tr.wrappedNative
		}
		if bounds, ok := prices[priceAddr]; ok {
			t = t.WithPrices(bounds[0], bounds[1])
		}
		out[addr] = t
	}
	return out
}
