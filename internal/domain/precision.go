package domain

import "github.com/shopspring/decimal"

// OrderPrecision decimal places used for every price and quantity sent to an exchange.
const OrderPrecision int32 = 8

// Truncate drops digits past OrderPrecision without rounding, so a published
// price or quantity never exceeds the computed value.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(OrderPrecision)
}

// FormatFixed renders d truncated to OrderPrecision with trailing zeros, e.g. 10.12349000.
func FormatFixed(d decimal.Decimal) string {
	return Truncate(d).StringFixed(OrderPrecision)
}
