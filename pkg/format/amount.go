// Package format renders on-chain integer amounts for display.
package format

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Placeholder is shown when a value is not known yet
const Placeholder = "..."

// FormatAmount scales amount down by tokenDecimals, truncates to displayDecimals
// and optionally groups the integer part with commas.
// Example: FormatAmount(1234567891, 6, 2, true) → "1,234.56"
func FormatAmount(amount *big.Int, tokenDecimals, displayDecimals int, useCommas bool) string {
	if amount == nil {
		return Placeholder
	}
	if displayDecimals < 0 {
		displayDecimals = 0
	}

	d := decimal.NewFromBigInt(amount, -int32(tokenDecimals))
	s := d.Truncate(int32(displayDecimals)).StringFixed(int32(displayDecimals))

	if useCommas {
		s = groupThousands(s)
	}
	return s
}

// groupThousands inserts commas into the integer part of a plain decimal string
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}
