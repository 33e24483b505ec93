package params

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/uhyunpark/orderwatch/pkg/market"
)

// TokenEntry is one token in the token list file
type TokenEntry struct {
	Address    string `mapstructure:"address"`
	Symbol     string `mapstructure:"symbol"`
	BaseSymbol string `mapstructure:"base_symbol"`
	Decimals   uint8  `mapstructure:"decimals"`
	Stable     bool   `mapstructure:"stable"`
	Wrapped    bool   `mapstructure:"wrapped"`
	Native     bool   `mapstructure:"native"`
	Usdg       bool   `mapstructure:"usdg"`
}

type tokenFile struct {
	Tokens []TokenEntry `mapstructure:"tokens"`
}

// LoadTokens reads a token list (YAML, JSON or TOML, chosen by extension) into a registry.
//
// Example tokens.yaml:
//
//	tokens:
//	  - address: "0x0000000000000000000000000000000000000000"
//	    symbol: ETH
//	    decimals: 18
//	    native: true
//	  - address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
//	    symbol: WETH
//	    base_symbol: ETH
//	    decimals: 18
//	    wrapped: true
func LoadTokens(path string, wrappedNative common.Address) (*market.TokenRegistry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read token list %s: %w", path, err)
	}

	var file tokenFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to parse token list %s: %w", path, err)
	}
	if len(file.Tokens) == 0 {
		return nil, fmt.Errorf("token list %s is empty", path)
	}

	registry := market.NewTokenRegistry(wrappedNative)
	for i, entry := range file.Tokens {
		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("token %d (%s): invalid address %q", i, entry.Symbol, entry.Address)
		}
		err := registry.RegisterToken(market.TokenInfo{
			Address:    common.HexToAddress(entry.Address),
			Symbol:     entry.Symbol,
			BaseSymbol: entry.BaseSymbol,
			Decimals:   entry.Decimals,
			IsStable:   entry.Stable,
			IsWrapped:  entry.Wrapped,
			IsNative:   entry.Native,
			IsUsdg:     entry.Usdg,
		})
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
	}

	return registry, nil
}
