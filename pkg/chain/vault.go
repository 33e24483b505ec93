package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderwatch/pkg/market"
)

// Vault reads prices and positions from the GMX Vault contract
type Vault struct {
	client  *Client
	address common.Address
}

func NewVault(client *Client, address common.Address) *Vault {
	return &Vault{client: client, address: address}
}

// TokenPrices returns [minPrice, maxPrice] per token, 30 decimals
func (v *Vault) TokenPrices(ctx context.Context, tokens []common.Address) (map[common.Address][2]*big.Int, error) {
	prices := make(map[common.Address][2]*big.Int, len(tokens))
	for _, token := range tokens {
		if _, done := prices[token]; done {
			continue
		}
		minPrice, err := v.client.callUint(ctx, VaultABI, v.address, "getMinPrice", token)
		if err != nil {
			return nil, fmt.Errorf("min price of %s: %w", token.Hex(), err)
		}
		maxPrice, err := v.client.callUint(ctx, VaultABI, v.address, "getMaxPrice", token)
		if err != nil {
			return nil, fmt.Errorf("max price of %s: %w", token.Hex(), err)
		}
		prices[token] = [2]*big.Int{minPrice, maxPrice}
	}
	return prices, nil
}

// Positions reads account's position at each key. Closed positions come back with zero size.
func (v *Vault) Positions(ctx context.Context, account common.Address, keys []market.PositionKey) (market.Positions, error) {
	positions := make(market.Positions, len(keys))
	for _, key := range keys {
		if _, done := positions[key]; done {
			continue
		}
		values, err := v.client.Call(ctx, VaultABI, v.address, "getPosition",
			account, key.CollateralToken, key.IndexToken, key.IsLong)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", key, err)
		}

		d := decoder{values: values}
		pos := market.Position{
			Key:          key,
			Size:         d.u256(),
			Collateral:   d.u256(),
			AveragePrice: d.u256(),
		}
		if d.err != nil {
			return nil, fmt.Errorf("decode position %s: %w", key, d.err)
		}
		positions.Add(pos)
	}
	return positions, nil
}
