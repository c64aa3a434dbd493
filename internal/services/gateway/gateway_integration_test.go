//go:build integration

package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/spotchain/internal/clients"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

// Public market data only, no credentials required.
// To run: go test -tags=integration -v ./internal/services/gateway/...
func TestMarketData_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	gateways := []interface {
		Name() string
		Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error)
		OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error)
	}{
		NewBinanceGateway(clients.NewPublicBinanceClient()),
		NewBybitGateway(clients.NewBybitClient("", "", false), ""),
	}

	for _, g := range gateways {
		t.Run(g.Name(), func(t *testing.T) {
			ctx := context.Background()
			pair := domain.Pair{From: "BTC", To: "USDT"}

			ticker, err := g.Ticker(ctx, pair)
			require.NoError(t, err)
			assert.True(t, ticker.Last.IsPositive(), "last price %s", ticker.Last)
			assert.True(t, ticker.Low.LessThanOrEqual(ticker.High))

			verdict, err := domain.EvaluateSpread(ticker, domain.Truncate(ticker.Last))
			require.NoError(t, err)
			t.Logf("%s %s spread: %s", g.Name(), pair, verdict.Spread)

			book, err := g.OrderBook(ctx, pair)
			require.NoError(t, err)
			require.NoError(t, book.Validate())
			assert.True(t, book.BestBid.LessThanOrEqual(book.BestAsk))

			_, err = g.Ticker(ctx, domain.Pair{From: "INVALID", To: "PAIR"})
			assert.Error(t, err)
		})
	}
}
