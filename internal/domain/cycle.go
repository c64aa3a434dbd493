package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cycle state of one exchange pass over its pairs. Balances are fetched for
// this cycle only and replaced after every placement or cancellation.
type Cycle struct {
	Exchange  string
	Account   AccountID
	StartedAt time.Time
	Balances  map[string]Balance
	Halts     BuyHalts
}

// NewCycle creates a cycle for account with the exchange's halts.
func NewCycle(exchange string, account AccountID, halts BuyHalts, now time.Time) *Cycle {
	if halts == nil {
		halts = BuyHalts{}
	}

	return &Cycle{
		Exchange:  exchange,
		Account:   account,
		StartedAt: now,
		Balances:  map[string]Balance{},
		Halts:     halts,
	}
}

// SetBalances replaces the balance snapshot.
func (c *Cycle) SetBalances(balances []Balance) {
	c.Balances = make(map[string]Balance, len(balances))
	for _, b := range balances {
		c.Balances[strings.ToUpper(b.Currency)] = b
	}
}

// Balance returns the snapshot for currency, zero when the account holds none.
func (c *Cycle) Balance(currency string) Balance {
	currency = strings.ToUpper(currency)
	if b, ok := c.Balances[currency]; ok {
		return b
	}

	return Balance{Currency: currency, Total: decimal.Zero, Available: decimal.Zero}
}
