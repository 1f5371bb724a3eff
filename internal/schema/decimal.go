package schema

import (
	"errors"

	"github.com/shopspring/decimal"
)

var errBlankDecimal = errors.New("schema: blank decimal field")

// decimalFromString parses a wire price/qty field, rejecting blank values
// — every trade and book level must carry both price and qty.
func decimalFromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, errBlankDecimal
	}
	return decimal.NewFromString(s)
}
