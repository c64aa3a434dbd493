package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateSpread(t *testing.T) {
	tests := []struct {
		name           string
		ticker         Ticker
		cut            decimal.Decimal
		expectedSpread decimal.Decimal
		allowed        bool
	}{
		{
			name:           "spread equal to cut is allowed",
			ticker:         Ticker{Last: decimal.NewFromInt(100), Low: decimal.NewFromInt(97)},
			cut:            decimal.NewFromInt(3),
			expectedSpread: decimal.NewFromInt(3),
			allowed:        true,
		},
		{
			name:           "spread above cut is rejected",
			ticker:         Ticker{Last: decimal.NewFromInt(100), Low: decimal.NewFromInt(97)},
			cut:            decimal.RequireFromString("2.9"),
			expectedSpread: decimal.NewFromInt(3),
			allowed:        false,
		},
		{
			name:           "negative cut is treated as its magnitude",
			ticker:         Ticker{Last: decimal.NewFromInt(100), Low: decimal.NewFromInt(99)},
			cut:            decimal.NewFromInt(-3),
			expectedSpread: decimal.NewFromInt(1),
			allowed:        true,
		},
		{
			// low above last happens on stale tickers, spread goes negative
			name:           "negative spread inside band",
			ticker:         Ticker{Last: decimal.NewFromInt(100), Low: decimal.NewFromInt(102)},
			cut:            decimal.NewFromInt(3),
			expectedSpread: decimal.NewFromInt(-2),
			allowed:        true,
		},
		{
			name:           "negative spread outside band",
			ticker:         Ticker{Last: decimal.NewFromInt(100), Low: decimal.NewFromInt(110)},
			cut:            decimal.NewFromInt(3),
			expectedSpread: decimal.NewFromInt(-10),
			allowed:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := EvaluateSpread(tt.ticker, tt.cut)
			require.NoError(t, err)
			assert.True(t, tt.expectedSpread.Equal(verdict.Spread), "spread %s", verdict.Spread)
			assert.Equal(t, tt.allowed, verdict.Allowed)
		})
	}
}

func TestEvaluateSpread_InvalidTicker(t *testing.T) {
	_, err := EvaluateSpread(Ticker{Last: decimal.Zero, Low: decimal.NewFromInt(1)}, decimal.NewFromInt(3))
	require.ErrorIs(t, err, ErrInvalidMarketData)

	_, err = EvaluateSpread(Ticker{Last: decimal.NewFromInt(-1), Low: decimal.NewFromInt(1)}, decimal.NewFromInt(3))
	require.ErrorIs(t, err, ErrInvalidMarketData)

	_, err = EvaluateSpread(Ticker{Last: decimal.NewFromInt(1), Low: decimal.NewFromInt(-1)}, decimal.NewFromInt(3))
	require.ErrorIs(t, err, ErrInvalidMarketData)
}
