// Package money formats and rounds currency amounts for display.
package money

import "github.com/shopspring/decimal"

// Round returns amount rounded half away from zero to two decimal places.
func Round(amount float64) float64 {
	rounded, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return rounded
}

// Format renders amount with exactly two decimals, e.g. "12.65".
func Format(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

// FormatWithSymbol prefixes the formatted amount with a currency symbol and
// moves the sign in front of it for negative values.
func FormatWithSymbol(symbol string, amount float64) string {
	d := decimal.NewFromFloat(amount)
	if d.IsNegative() {
		return "-" + symbol + d.Neg().StringFixed(2)
	}
	return symbol + d.StringFixed(2)
}
