package ledger

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept on stored amounts.
const MoneyScale = 8

var hundred = decimal.NewFromInt(100)

// Percent returns pct% of amount, rounded to MoneyScale.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(MoneyScale)
}

// Money parses a decimal literal, panicking on malformed input.
// Meant for constants and tests.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
