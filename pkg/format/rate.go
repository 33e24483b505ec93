package format

import (
	"fmt"
	"math/big"

	"github.com/uhyunpark/orderwatch/pkg/market"
)

const (
	TriggerPrefixAbove = "above"
	TriggerPrefixBelow = "below"
)

// Precision is 10^30, the fixed-point scale of USD prices and exchange rates
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(market.USDDecimals), nil)

// TriggerPrefix labels a trigger price from the stored threshold flag
func TriggerPrefix(triggerAboveThreshold bool) string {
	if triggerAboveThreshold {
		return TriggerPrefixAbove
	}
	return TriggerPrefixBelow
}

// DisplayDecimals is 2 for dollar-like tokens and 4 for everything else
func DisplayDecimals(t market.TokenInfo) int {
	if t.IsStable || t.IsUsdg {
		return 2
	}
	return 4
}

// TokenAmount formats a raw token amount with the token's own precision rules
func TokenAmount(amount *big.Int, t market.TokenInfo) string {
	return FormatAmount(amount, int(t.Decimals), DisplayDecimals(t), true)
}

// USD formats a 30-decimal USD value with two decimals
func USD(amount *big.Int) string {
	return FormatAmount(amount, market.USDDecimals, 2, true)
}

// shouldInvert quotes the rate in the direction a trader reads it: stable tokens and the
// cheaper token go second.
func shouldInvert(from, to market.TokenInfo) bool {
	if to.IsStable || to.IsUsdg {
		return true
	}
	if to.MaxPrice != nil && from.MaxPrice != nil && to.MaxPrice.Cmp(from.MaxPrice) < 0 {
		return true
	}
	return false
}

// ExchangeRate renders a from→to exchange rate (30 decimals) as "1,500.00 USDC / ETH"
// style text. The same function renders trigger ratios and mark rates so they line up.
func ExchangeRate(rate *big.Int, from, to market.TokenInfo) string {
	if rate == nil || rate.Sign() == 0 {
		return Placeholder
	}
	a, b := from, to
	if shouldInvert(from, to) {
		a, b = to, from
		rate = new(big.Int).Div(new(big.Int).Mul(Precision, Precision), rate)
	}
	value := FormatAmount(rate, market.USDDecimals, DisplayDecimals(a), true)
	return fmt.Sprintf("%s %s / %s", value, a.Symbol, b.Symbol)
}
