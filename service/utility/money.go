package utility

import (
	"math"

	"github.com/shopspring/decimal"
)

// Shillings carry two places; anything finer is dropped before storage.
const decimalPrecision = 2

func maxDecimalValue() decimal.Decimal {
	return decimal.NewFromInt(math.MaxInt64).Add(decimal.New(99, -decimalPrecision))
}

func CleanDecimal(d decimal.Decimal) decimal.Decimal {
	truncatedStr := d.StringFixed(decimalPrecision)

	rounded, _ := decimal.NewFromString(truncatedStr)

	minValue := maxDecimalValue().Neg()

	if rounded.GreaterThan(maxDecimalValue()) {
		return maxDecimalValue()
	} else if rounded.LessThan(minValue) {
		return minValue
	}

	return rounded
}

// WholeAmount renders an amount as the whole-shilling string the gateway
// accepts. Fractions round up.
func WholeAmount(d decimal.Decimal) string {
	return d.Ceil().StringFixed(0)
}

func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}
