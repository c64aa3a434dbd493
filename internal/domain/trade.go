package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerOrder durable, append-only record of an order the engine submitted or canceled.
type LedgerOrder struct {
	ID       uint64          `json:"id"`
	Quantity decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	Side     Side            `json:"side"`
	Pair     Pair            `json:"pair"`
	// BasedOnOrderID ledger order this one responds to; nil for stand-alone orders.
	BasedOnOrderID *uint64 `json:"based_on_order,omitempty"`
	Exchange       string  `json:"market"`
	Reason         string  `json:"reason"`
	// ExternalOrderID exchange order id; nil for cancel-log entries.
	ExternalOrderID *string `json:"market_id,omitempty"`
	// CancelsExternalID exchange order id this cancel-log entry supersedes.
	CancelsExternalID *string   `json:"cancels_market_id,omitempty"`
	Timestamp         time.Time `json:"time"`
}

// IsCancel reports whether the record is a cancel-log entry.
func (o LedgerOrder) IsCancel() bool {
	return o.CancelsExternalID != nil
}

// String returns a human-readable string representation.
func (o LedgerOrder) String() string {
	based := "none"
	if o.BasedOnOrderID != nil {
		based = fmt.Sprintf("#%d", *o.BasedOnOrderID)
	}
	return fmt.Sprintf("#%d %s %s %s qty: %s price: %s based_on: %s",
		o.ID, o.Exchange, o.Pair.String(), o.Side, o.Quantity.String(), o.Price.String(), based)
}

// NewCancelRecord builds the cancel-log entry for an order removed from the book.
func NewCancelRecord(exchange string, order OpenOrder, reason string, at time.Time) LedgerOrder {
	canceled := order.ID
	return LedgerOrder{
		Quantity:          order.Quantity,
		Price:             order.LimitPrice,
		Side:              order.Side,
		Pair:              order.Pair,
		Exchange:          exchange,
		Reason:            reason,
		CancelsExternalID: &canceled,
		Timestamp:         at,
	}
}
