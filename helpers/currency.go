package helpers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency formats an amount with a symbol, comma thousand separators
// and 2 decimals, e.g. "£1,234,567.89" or "-£12.50"
func FormatCurrency(amount float64, symbol string) string {
	fixed := decimal.NewFromFloat(amount).StringFixed(2)

	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	whole, frac, _ := strings.Cut(fixed, ".")
	length := len(whole)

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (length-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	if negative && fixed != "0.00" {
		return fmt.Sprintf("-%s%s.%s", symbol, b.String(), frac)
	}
	return fmt.Sprintf("%s%s.%s", symbol, b.String(), frac)
}

// FormatPercent renders a ratio as a percentage, e.g. 0.1234 -> "12.3%"
func FormatPercent(ratio float64, places int) string {
	return decimal.NewFromFloat(ratio).Mul(decimal.NewFromInt(100)).StringFixed(int32(places)) + "%"
}
