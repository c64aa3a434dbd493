package chain

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/storage/ledger"
	ledgerMock "github.com/vadiminshakov/spotchain/mocks/ledger"
	"go.uber.org/zap"
)

var pair = domain.Pair{From: "LTC", To: "USDT"}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	candidate := &domain.LedgerOrder{ID: 5, Side: domain.SideBuy, Pair: pair, Exchange: "binance", Price: decimal.NewFromInt(100)}

	t.Run("linked", func(t *testing.T) {
		l := ledgerMock.NewLedger(t)
		l.On("FindLatestUnconsumed", ctx, pair, "binance", domain.SideBuy).Return(candidate, nil)
		l.On("FindConsumersOf", ctx, uint64(5)).Return([]domain.LedgerOrder{}, nil)

		res := NewResolver(zap.NewNop(), l).Resolve(ctx, pair, "binance", domain.SideBuy)
		assert.Equal(t, OutcomeLinked, res.Outcome)
		require.NotNil(t, res.Link)
		assert.Equal(t, uint64(5), res.Link.ID)
		l.AssertExpectations(t)
	})

	t.Run("none", func(t *testing.T) {
		l := ledgerMock.NewLedger(t)
		l.On("FindLatestUnconsumed", ctx, pair, "binance", domain.SideBuy).Return(nil, nil)

		res := NewResolver(zap.NewNop(), l).Resolve(ctx, pair, "binance", domain.SideBuy)
		assert.Equal(t, OutcomeNone, res.Outcome)
		assert.Nil(t, res.Link)
		l.AssertNotCalled(t, "FindConsumersOf", mock.Anything, mock.Anything)
	})

	t.Run("consumed between lookups", func(t *testing.T) {
		l := ledgerMock.NewLedger(t)
		l.On("FindLatestUnconsumed", ctx, pair, "binance", domain.SideBuy).Return(candidate, nil)
		l.On("FindConsumersOf", ctx, uint64(5)).Return([]domain.LedgerOrder{{ID: 6}}, nil)

		res := NewResolver(zap.NewNop(), l).Resolve(ctx, pair, "binance", domain.SideBuy)
		assert.Equal(t, OutcomeConsumed, res.Outcome)
		assert.Nil(t, res.Link)
	})

	t.Run("ledger error degrades to no link", func(t *testing.T) {
		l := ledgerMock.NewLedger(t)
		l.On("FindLatestUnconsumed", ctx, pair, "binance", domain.SideBuy).
			Return(nil, errors.Wrap(domain.ErrLedgerUnavailable, "disk gone"))

		res := NewResolver(zap.NewNop(), l).Resolve(ctx, pair, "binance", domain.SideBuy)
		assert.Equal(t, OutcomeUnavailable, res.Outcome)
		assert.Nil(t, res.Link)
	})

	t.Run("consumers error degrades to no link", func(t *testing.T) {
		l := ledgerMock.NewLedger(t)
		l.On("FindLatestUnconsumed", ctx, pair, "binance", domain.SideBuy).Return(candidate, nil)
		l.On("FindConsumersOf", ctx, uint64(5)).Return(nil, errors.New("boom"))

		res := NewResolver(zap.NewNop(), l).Resolve(ctx, pair, "binance", domain.SideBuy)
		assert.Equal(t, OutcomeUnavailable, res.Outcome)
	})
}

func TestResolver_WithWALLedger(t *testing.T) {
	ctx := context.Background()
	store, err := ledger.NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ext := "1001"
	buyID, err := store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), Side: domain.SideBuy,
		Pair: pair, Exchange: "binance", ExternalOrderID: &ext,
	})
	require.NoError(t, err)

	r := NewResolver(zap.NewNop(), store)
	res := r.Resolve(ctx, pair, "binance", domain.SideBuy)
	require.Equal(t, OutcomeLinked, res.Outcome)
	assert.Equal(t, buyID, res.Link.ID)

	sellExt := "1002"
	_, err = store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(102), Side: domain.SideSell,
		Pair: pair, Exchange: "binance", ExternalOrderID: &sellExt, BasedOnOrderID: &buyID,
	})
	require.NoError(t, err)

	res = r.Resolve(ctx, pair, "binance", domain.SideBuy)
	assert.Equal(t, OutcomeNone, res.Outcome, "the store hides consumed orders")
	assert.Nil(t, res.Link)
}
