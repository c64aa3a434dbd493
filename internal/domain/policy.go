package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PairPolicy trading parameters of one pair.
type PairPolicy struct {
	Pair Pair
	// SpreadCutPercent spread gate in percent, 3 = 3%.
	SpreadCutPercent decimal.Decimal
	// QuoteAllocationCut fraction of the quote balance the buy leg may commit.
	QuoteAllocationCut decimal.Decimal
	// BaseAllocationCut fraction of the base balance the sell leg may commit.
	BaseAllocationCut decimal.Decimal
	// Margin fraction, 0.011 = 1.1%.
	Margin decimal.Decimal
	// OrderDisparity fraction used for staleness and the linked price band.
	OrderDisparity decimal.Decimal
	MinBaseQuantity decimal.Decimal
	// MinOrderValue in quote currency.
	MinOrderValue decimal.Decimal
}

// LiquidationPolicy defensive liquidation after a stale sell is canceled.
type LiquidationPolicy struct {
	Enabled      bool
	HaltDuration time.Duration
}
