package domain

import (
	"github.com/shopspring/decimal"
)

// Ticker 24h market snapshot for a pair, fetched fresh every cycle.
type Ticker struct {
	High    decimal.Decimal
	Low     decimal.Decimal
	Last    decimal.Decimal
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// OrderBook top of the book.
type OrderBook struct {
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// Validate rejects empty or non-positive quotes.
func (b OrderBook) Validate() error {
	if !b.BestBid.IsPositive() || !b.BestAsk.IsPositive() {
		return invalidMarketData("best bid/ask must be positive, got bid=%s ask=%s", b.BestBid, b.BestAsk)
	}
	return nil
}

// Balance per-currency account balance.
type Balance struct {
	Currency  string
	Total     decimal.Decimal
	Available decimal.Decimal
}

// OpenOrder order resting on the exchange book.
type OpenOrder struct {
	ID         string
	Pair       Pair
	Side       Side
	LimitPrice decimal.Decimal
	// Quantity remaining (unfilled) base quantity.
	Quantity decimal.Decimal
}

// AccountID exchange account identifier, opaque to the engine.
type AccountID string

// OrderRequest order submission. Price and Quantity are fixed-point strings
// produced by FormatFixed; Price is empty for market orders.
type OrderRequest struct {
	Pair          Pair
	Side          Side
	Type          OrderType
	Price         string
	Quantity      string
	ClientOrderID string
}
