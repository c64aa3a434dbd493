package domain

import "fmt"

// Side direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// IsValid checks if the Side value is valid.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// String returns the string representation.
func (s Side) String() string {
	return string(s)
}

// ParseSide parses "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "BUY", "Buy":
		return SideBuy, nil
	case "sell", "SELL", "Sell":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown order side %q", s)
	}
}

// OrderType limit or market.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)
