package domain

import "github.com/shopspring/decimal"

var (
	// CODFee is charged on every cash-on-delivery order.
	CODFee = decimal.RequireFromString("50.00")
	// DefaultCommissionRate is applied to new shops, in percent.
	DefaultCommissionRate = decimal.RequireFromString("15.00")

	hundred = decimal.NewFromInt(100)
)

// MoneyPlaces is the scale every persisted amount is rounded to.
const MoneyPlaces = 2

// DisplayPrice returns base × (1 + rate/100) rounded half-to-even to two places.
func DisplayPrice(base, commissionRate decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(commissionRate.Div(hundred))
	return Money(base.Mul(factor))
}

// Money rounds an amount to two places using banker's rounding.
func Money(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(MoneyPlaces)
}

// ValidCommissionRate reports whether rate is within 0..100 percent.
func ValidCommissionRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(hundred)
}
