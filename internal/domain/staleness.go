package domain

import "github.com/shopspring/decimal"

// IsStale reports whether an open order drifted beyond disparity from the book.
// A buy is stale when price*(1+disparity) is still under the best bid, a sell
// when price*(1-disparity) is still over the best ask.
func IsStale(o OpenOrder, book OrderBook, disparity decimal.Decimal) bool {
	one := decimal.NewFromInt(1)
	switch o.Side {
	case SideBuy:
		return o.LimitPrice.Mul(one.Add(disparity)).LessThan(book.BestBid)
	case SideSell:
		return o.LimitPrice.Mul(one.Sub(disparity)).GreaterThan(book.BestAsk)
	default:
		return false
	}
}
