package domain

import "github.com/pkg/errors"

var (
	// ErrInvalidMarketData zero/negative price or missing ticker field.
	ErrInvalidMarketData = errors.New("invalid market data")
	// ErrGateway exchange-side failure: network, auth, rate limit or rejection.
	ErrGateway = errors.New("market gateway error")
	// ErrLedgerUnavailable ledger read or write failure.
	ErrLedgerUnavailable = errors.New("order ledger unavailable")
	// ErrInvalidChain based-on reference violates ledger ordering.
	ErrInvalidChain = errors.New("invalid based-on reference")
	// ErrOrderNotFound order is not resting on the exchange.
	ErrOrderNotFound = errors.New("order not found")
)

func invalidMarketData(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidMarketData, format, args...)
}
