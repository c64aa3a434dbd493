package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// SpreadVerdict result of the 24h spread gate.
type SpreadVerdict struct {
	// Spread percentage 100 - 100*low/last.
	Spread decimal.Decimal
	// Allowed true when -cut <= spread <= cut.
	Allowed bool
}

// EvaluateSpread decides whether trading is permitted for this cycle based on
// how far the last price sits above the 24h low.
func EvaluateSpread(t Ticker, spreadCutPercent decimal.Decimal) (SpreadVerdict, error) {
	if !t.Last.IsPositive() {
		return SpreadVerdict{}, invalidMarketData("ticker last price must be positive, got %s", t.Last)
	}
	if t.Low.IsNegative() {
		return SpreadVerdict{}, invalidMarketData("ticker low price must not be negative, got %s", t.Low)
	}

	spread := hundred.Sub(hundred.Mul(t.Low).Div(t.Last))
	cut := spreadCutPercent.Abs()

	return SpreadVerdict{
		Spread:  spread,
		Allowed: spread.GreaterThanOrEqual(cut.Neg()) && spread.LessThanOrEqual(cut),
	}, nil
}
