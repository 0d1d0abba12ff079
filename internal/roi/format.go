package roi

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency renders whole dollars with thousands separators, e.g. $1,950,000.
func FormatCurrency(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(0)
	neg := d.IsNegative()
	digits := d.Abs().StringFixed(0)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatMultiplier renders a return multiple with one decimal, e.g. 59.1x.
func FormatMultiplier(m float64) string {
	return decimal.NewFromFloat(m).StringFixed(1) + "x"
}

// FormatHours renders hours without a trailing .0 for whole values.
func FormatHours(h float64) string {
	return decimal.NewFromFloat(h).Round(1).String()
}
