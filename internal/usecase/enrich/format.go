package enrich

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

// FormatShortNumber сокращает число до одного знака с суффиксом M или K.
// Округление банковское (половина к чётному): 1250000 -> "1.2M", 2350 -> "2.4K".
// Нулевой дробный знак отбрасывается, а 999950 после округления становится "1M".
func FormatShortNumber(n float64) string {
	d := decimal.NewFromFloat(n)
	switch {
	case d.GreaterThanOrEqual(million):
		return shorten(d.Div(million), "M")
	case d.GreaterThanOrEqual(thousand):
		if d.Div(thousand).RoundBank(1).GreaterThanOrEqual(thousand) {
			return shorten(d.Div(million), "M")
		}
		return shorten(d.Div(thousand), "K")
	default:
		return d.String()
	}
}

func shorten(d decimal.Decimal, suffix string) string {
	return strings.TrimSuffix(d.RoundBank(1).StringFixed(1), ".0") + suffix
}
