package business

import (
	"github.com/fingrow/service-welfare/service/utility"
	"github.com/shopspring/decimal"
)

var DefaultInterestRate = decimal.RequireFromString("0.05")

// InterestPolicy charges a flat rate on the principal.
type InterestPolicy struct {
	Rate decimal.Decimal
}

func NewInterestPolicy(rate decimal.Decimal) InterestPolicy {
	if rate.IsNegative() {
		rate = DefaultInterestRate
	}
	return InterestPolicy{Rate: rate}
}

func (p InterestPolicy) Calculate(amount decimal.Decimal) (interest decimal.Decimal, totalOwed decimal.Decimal) {
	interest = utility.CleanDecimal(amount.Mul(p.Rate))
	totalOwed = utility.CleanDecimal(amount.Add(interest))
	return interest, totalOwed
}
