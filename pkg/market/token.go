package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// USDDecimals is the precision of every USD value the Vault reports (prices, sizes)
const USDDecimals = 30

// NativeToken is the key the chain's native asset uses in a token map
var NativeToken = common.Address{}

// TokenInfo describes a token and its current Vault price bounds.
// MinPrice and MaxPrice are USD with 30 decimals; MinPrice <= MaxPrice.
type TokenInfo struct {
	Address    common.Address
	Symbol     string
	BaseSymbol string // e.g. "ETH" for WETH
	Decimals   uint8

	IsStable  bool
	IsWrapped bool
	IsNative  bool
	IsUsdg    bool

	MinPrice *big.Int // bid
	MaxPrice *big.Int // ask
}

// DisplaySymbol shows wrapped tokens under their base symbol
func (t TokenInfo) DisplaySymbol() string {
	if t.IsWrapped && t.BaseSymbol != "" {
		return t.BaseSymbol
	}
	return t.Symbol
}

// HasPrices reports whether both price bounds are known
func (t TokenInfo) HasPrices() bool {
	return t.MinPrice != nil && t.MaxPrice != nil
}

// Validate checks the price bound invariant
func (t TokenInfo) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("token %s has no symbol", t.Address.Hex())
	}
	if t.MinPrice != nil && t.MinPrice.Sign() < 0 {
		return fmt.Errorf("token %s has negative min price", t.Symbol)
	}
	if t.HasPrices() && t.MinPrice.Cmp(t.MaxPrice) > 0 {
		return fmt.Errorf("token %s min price %s exceeds max price %s", t.Symbol, t.MinPrice, t.MaxPrice)
	}
	return nil
}

// WithPrices returns a copy of the token carrying the given bounds
func (t TokenInfo) WithPrices(minPrice, maxPrice *big.Int) TokenInfo {
	t.MinPrice = minPrice
	t.MaxPrice = maxPrice
	return t
}

// Tokens maps token address to TokenInfo. The native asset is stored under NativeToken.
type Tokens map[common.Address]TokenInfo

// Lookup returns the info for addr
func (ts Tokens) Lookup(addr common.Address) (TokenInfo, bool) {
	t, ok := ts[addr]
	return t, ok
}

// Resolve is Lookup with native replacement: when replaceNative is set and addr is the
// wrapped native token, the native token's info is returned instead.
func (ts Tokens) Resolve(addr common.Address, replaceNative bool, wrappedNative common.Address) (TokenInfo, bool) {
	if replaceNative && addr == wrappedNative && wrappedNative != (common.Address{}) {
		return ts.Lookup(NativeToken)
	}
	return ts.Lookup(addr)
}
