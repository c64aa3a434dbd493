// Package gateway adapts exchange SDKs to the market gateway used by the trading cycle.
package gateway

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/pkg/retrier"
)

const (
	NameBinance = "binance"
	NameBybit   = "bybit"
	NamePaper   = "paper"
)

// gatewayError marks err as an exchange-side failure.
func gatewayError(err error, op string) error {
	return errors.Wrapf(domain.ErrGateway, "%s: %v", op, err)
}

// readRetrier retries read-only calls. Order placement and cancellation are never retried.
func readRetrier() *retrier.Retrier {
	return retrier.New(
		retrier.WithMaxRetries(2),
		retrier.WithInitialInterval(200*time.Millisecond),
		retrier.WithMaxInterval(time.Second),
		retrier.WithRetryIf(func(err error) bool {
			return !errors.Is(err, domain.ErrOrderNotFound)
		}),
	)
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidMarketData, "parse %s %q: %v", field, value, err)
	}
	return d, nil
}

type fields map[string]string

// parseAll parses every named decimal, failing on the first bad one.
func parseAll(in fields) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(in))
	for name, value := range in {
		d, err := parseDecimal(name, value)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}
