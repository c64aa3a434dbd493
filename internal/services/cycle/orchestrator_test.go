package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/storage/ledger"
	gatewayMock "github.com/vadiminshakov/spotchain/mocks/gateway"
	ledgerMock "github.com/vadiminshakov/spotchain/mocks/ledger"
	"go.uber.org/zap"
)

var (
	ltc     = domain.Pair{From: "LTC", To: "USDT"}
	btc     = domain.Pair{From: "BTC", To: "USDT"}
	account = domain.AccountID("spot")
	d       = decimal.RequireFromString
)

func policyFor(pair domain.Pair) domain.PairPolicy {
	return domain.PairPolicy{
		Pair:               pair,
		SpreadCutPercent:   d("3"),
		QuoteAllocationCut: d("0.5"),
		BaseAllocationCut:  d("1"),
		Margin:             d("0.01"),
		OrderDisparity:     d("0.025"),
		MinBaseQuantity:    d("0.01"),
		MinOrderValue:      d("10"),
	}
}

func newStore(t *testing.T) *ledger.WALStore {
	store, err := ledger.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newOrchestrator(gw *gatewayMock.Gateway, store orderLedger, pairs ...domain.PairPolicy) *Orchestrator {
	return NewOrchestrator(zap.NewNop(), Config{
		Exchange:       "binance",
		Account:        account,
		Pairs:          pairs,
		GatewayTimeout: time.Second,
		Liquidation:    domain.LiquidationPolicy{Enabled: true, HaltDuration: time.Hour},
	}, gw, store, nil)
}

func calmMarket(gw *gatewayMock.Gateway, pair domain.Pair) {
	gw.On("Ticker", mock.Anything, pair).Return(domain.Ticker{
		High: d("101"), Low: d("98"), Last: d("100"), BestBid: d("99.9"), BestAsk: d("100"),
	}, nil)
	gw.On("OrderBook", mock.Anything, pair).Return(domain.OrderBook{BestBid: d("99.9"), BestAsk: d("100")}, nil)
}

func usdt(total, available string) domain.Balance {
	return domain.Balance{Currency: "USDT", Total: d(total), Available: d(available)}
}

func coin(currency, total, available string) domain.Balance {
	return domain.Balance{Currency: currency, Total: d(total), Available: d(available)}
}

func TestRunCycle_PlacesMarketBuy(t *testing.T) {
	ctx := context.Background()
	gw := gatewayMock.NewGateway(t)
	store := newStore(t)
	o := newOrchestrator(gw, store, policyFor(ltc))

	calmMarket(gw, ltc)
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000")}, nil).Once()
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "500")}, nil)
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{}, nil)
	gw.On("PlaceOrder", mock.Anything, account, mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Side == domain.SideBuy &&
			req.Type == domain.OrderTypeLimit &&
			req.Price == "99.00000000" &&
			req.Quantity == "5.05050505"
	})).Return("b-1", nil).Once()

	report, err := o.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Pairs, 1)

	pr := report.Pairs[0]
	require.NoError(t, pr.Err)
	assert.True(t, d("2").Equal(pr.Spread))
	assert.Empty(t, pr.BuySkip)
	assert.Equal(t, SkipInsufficient, pr.SellSkip)
	require.Len(t, pr.Placed, 1)
	assert.Equal(t, uint64(1), pr.Placed[0].ID)
	assert.Nil(t, pr.Placed[0].BasedOnOrderID)

	rows, err := store.After(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b-1", *rows[0].ExternalOrderID)
	assert.Equal(t, "99", rows[0].Price.String())
}

func TestRunCycle_RerunDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	gw := gatewayMock.NewGateway(t)
	store := newStore(t)
	o := newOrchestrator(gw, store, policyFor(ltc))

	calmMarket(gw, ltc)
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000")}, nil).Once()
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "500")}, nil)
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{}, nil).Once()
	gw.On("PlaceOrder", mock.Anything, account, mock.Anything).Return("b-1", nil).Once()
	// the buy now rests on the book
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{
		{ID: "b-1", Pair: ltc, Side: domain.SideBuy, LimitPrice: d("99"), Quantity: d("5.05050505")},
	}, nil)

	for i := 0; i < 2; i++ {
		report, err := o.RunCycle(ctx)
		require.NoError(t, err)
		require.NoError(t, report.Pairs[0].Err)
	}

	rows, err := store.After(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "second pass sees the resting buy and places nothing")
	gw.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestRunCycle_SellChainsToLatestBuy(t *testing.T) {
	ctx := context.Background()
	gw := gatewayMock.NewGateway(t)
	store := newStore(t)
	o := newOrchestrator(gw, store, policyFor(ltc))

	ext := "b-0"
	buyID, err := store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: d("2"), Price: d("98"), Side: domain.SideBuy, Pair: ltc,
		Exchange: "binance", ExternalOrderID: &ext, Timestamp: time.Now(),
	})
	require.NoError(t, err)

	calmMarket(gw, ltc)
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("0", "0"), coin("LTC", "2", "2")}, nil)
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{}, nil)
	// 98 * 1.01 = 98.98 would cross the bid, clamped to 99.9
	gw.On("PlaceOrder", mock.Anything, account, mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Side == domain.SideSell && req.Price == "99.90000000" && req.Quantity == "2.00000000"
	})).Return("s-1", nil).Once()

	report, err := o.RunCycle(ctx)
	require.NoError(t, err)

	pr := report.Pairs[0]
	require.NoError(t, pr.Err)
	assert.Equal(t, SkipInsufficient, pr.BuySkip)
	require.Len(t, pr.Placed, 1)
	require.NotNil(t, pr.Placed[0].BasedOnOrderID)
	assert.Equal(t, buyID, *pr.Placed[0].BasedOnOrderID)
	assert.Contains(t, pr.Placed[0].Reason, "clamped")

	latest, err := store.FindLatestUnconsumed(ctx, ltc, "binance", domain.SideBuy)
	require.NoError(t, err)
	assert.Nil(t, latest, "the buy is consumed by the sell")
}

func TestRunCycle_BuyChainsToLatestSell(t *testing.T) {
	ctx := context.Background()
	gw := gatewayMock.NewGateway(t)
	store := newStore(t)
	o := newOrchestrator(gw, store, policyFor(ltc))

	ext := "s-0"
	sellID, err := store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: d("1"), Price: d("100.5"), Side: domain.SideSell, Pair: ltc,
		Exchange: "binance", ExternalOrderID: &ext, Timestamp: time.Now(),
	})
	require.NoError(t, err)

	calmMarket(gw, ltc)
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("200", "200")}, nil)
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{}, nil)
	// 100.5 * 0.99 = 99.495, qty = 100 / 99.495
	gw.On("PlaceOrder", mock.Anything, account, mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Side == domain.SideBuy && req.Price == "99.49500000" && req.Quantity == "1.00507563"
	})).Return("b-1", nil).Once()

	report, err := o.RunCycle(ctx)
	require.NoError(t, err)

	pr := report.Pairs[0]
	require.NoError(t, pr.Err)
	require.Len(t, pr.Placed, 1)
	require.NotNil(t, pr.Placed[0].BasedOnOrderID)
	assert.Equal(t, sellID, *pr.Placed[0].BasedOnOrderID)
}

func TestRunCycle_SpreadGateSkipsPair(t *testing.T) {
	gw := gatewayMock.NewGateway(t)
	o := newOrchestrator(gw, newStore(t), policyFor(ltc))

	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000")}, nil)
	gw.On("Ticker", mock.Anything, ltc).Return(domain.Ticker{
		High: d("100"), Low: d("90"), Last: d("100"), BestBid: d("99"), BestAsk: d("100"),
	}, nil)

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	pr := report.Pairs[0]
	assert.Equal(t, SkipSpread, pr.Skipped)
	assert.NoError(t, pr.Err)
	gw.AssertNotCalled(t, "OrderBook", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_PairFailureIsIsolated(t *testing.T) {
	gw := gatewayMock.NewGateway(t)
	store := newStore(t)
	o := newOrchestrator(gw, store, policyFor(btc), policyFor(ltc))

	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000")}, nil)
	gw.On("Ticker", mock.Anything, btc).Return(domain.Ticker{}, errors.Wrap(domain.ErrGateway, "timeout"))
	calmMarket(gw, ltc)
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{}, nil)
	gw.On("PlaceOrder", mock.Anything, account, mock.Anything).Return("b-1", nil).Once()

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Pairs, 2)

	assert.Equal(t, StepSpread, report.Pairs[0].Step)
	assert.ErrorIs(t, report.Pairs[0].Err, domain.ErrGateway)

	assert.NoError(t, report.Pairs[1].Err)
	assert.Len(t, report.Pairs[1].Placed, 1)
}

func TestRunCycle_InvalidTicker(t *testing.T) {
	gw := gatewayMock.NewGateway(t)
	o := newOrchestrator(gw, newStore(t), policyFor(ltc))

	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000")}, nil)
	gw.On("Ticker", mock.Anything, ltc).Return(domain.Ticker{Low: d("1"), Last: decimal.Zero}, nil)

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepSpread, report.Pairs[0].Step)
	assert.ErrorIs(t, report.Pairs[0].Err, domain.ErrInvalidMarketData)
}

func TestRunCycle_BalancesFailureFailsCycle(t *testing.T) {
	gw := gatewayMock.NewGateway(t)
	o := newOrchestrator(gw, newStore(t), policyFor(ltc))

	gw.On("Balances", mock.Anything, account).Return(nil, errors.Wrap(domain.ErrGateway, "401"))

	_, err := o.RunCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrGateway)
	gw.AssertNotCalled(t, "Ticker", mock.Anything, mock.Anything)
}

func TestRunCycle_LiquidationHaltsBuys(t *testing.T) {
	ctx := context.Background()
	gw := gatewayMock.NewGateway(t)
	store := newStore(t)
	o := newOrchestrator(gw, store, policyFor(ltc))

	calmMarket(gw, ltc)
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000"), coin("LTC", "1", "0")}, nil).Once()
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{
		{ID: "s-old", Pair: ltc, Side: domain.SideSell, LimitPrice: d("150"), Quantity: d("1")},
	}, nil).Once()
	gw.On("CancelOrder", mock.Anything, account, ltc, "s-old").Return(nil).Once()
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000"), coin("LTC", "1", "1")}, nil).Once()
	gw.On("PlaceOrder", mock.Anything, account, mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Type == domain.OrderTypeMarket && req.Side == domain.SideSell && req.Quantity == "1.00000000"
	})).Return("m-1", nil).Once()
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1099", "1099"), coin("LTC", "0", "0")}, nil)

	report, err := o.RunCycle(ctx)
	require.NoError(t, err)

	pr := report.Pairs[0]
	require.NoError(t, pr.Err)
	require.Len(t, pr.Canceled, 1)
	assert.Equal(t, SkipBuyHalted, pr.BuySkip)
	assert.Equal(t, SkipInsufficient, pr.SellSkip)
	require.Len(t, pr.Placed, 1)
	assert.Equal(t, "m-1", *pr.Placed[0].ExternalOrderID)

	// still halted on the next cycle
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{}, nil)
	report, err = o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipBuyHalted, report.Pairs[0].BuySkip)

	// and released once the halt expires
	o.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	gw.On("PlaceOrder", mock.Anything, account, mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Type == domain.OrderTypeLimit && req.Side == domain.SideBuy
	})).Return("b-1", nil).Once()
	report, err = o.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Pairs[0].BuySkip)
}

func TestRunCycle_LedgerFailureAfterPlacement(t *testing.T) {
	gw := gatewayMock.NewGateway(t)
	lm := ledgerMock.NewLedger(t)
	o := newOrchestrator(gw, lm, policyFor(ltc))

	calmMarket(gw, ltc)
	gw.On("Balances", mock.Anything, account).Return([]domain.Balance{usdt("1000", "1000")}, nil)
	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{}, nil)
	gw.On("PlaceOrder", mock.Anything, account, mock.Anything).Return("b-1", nil).Once()
	lm.On("FindLatestUnconsumed", mock.Anything, ltc, "binance", domain.SideSell).Return(nil, nil)
	lm.On("AppendOrder", mock.Anything, mock.Anything).Return(uint64(0), errors.Wrap(domain.ErrLedgerUnavailable, "disk full")).Once()

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	pr := report.Pairs[0]
	assert.NoError(t, pr.Err, "the order is live, the pair is not failed")
	require.Len(t, pr.Placed, 1)
	assert.Zero(t, pr.Placed[0].ID)
	assert.Equal(t, "b-1", *pr.Placed[0].ExternalOrderID)
}

func TestRunCycle_ResolvesAccount(t *testing.T) {
	gw := gatewayMock.NewGateway(t)
	gw.On("Name").Return("paper")

	o := NewOrchestrator(zap.NewNop(), Config{
		Pairs:          []domain.PairPolicy{policyFor(ltc)},
		GatewayTimeout: time.Second,
	}, gw, newStore(t), nil)

	gw.On("Accounts", mock.Anything).Return([]domain.AccountID{"main"}, nil).Once()
	gw.On("Balances", mock.Anything, domain.AccountID("main")).Return([]domain.Balance{}, nil)
	gw.On("Ticker", mock.Anything, ltc).Return(domain.Ticker{Low: d("90"), Last: d("100")}, nil)

	for i := 0; i < 2; i++ {
		report, err := o.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "paper", report.Exchange)
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	gw := gatewayMock.NewGateway(t)
	store := newStore(t)
	o := newOrchestrator(gw, store, policyFor(ltc))

	known := "b-7"
	_, err := store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: d("1"), Price: d("90"), Side: domain.SideBuy, Pair: ltc,
		Exchange: "binance", ExternalOrderID: &known, Timestamp: time.Now(),
	})
	require.NoError(t, err)

	gw.On("OpenOrders", mock.Anything, account, ltc).Return([]domain.OpenOrder{
		{ID: "x-9", Pair: ltc, Side: domain.SideSell, LimitPrice: d("120"), Quantity: d("1")},
	}, nil)
	gw.On("Order", mock.Anything, account, ltc, "b-7").Return(domain.OpenOrder{}, errors.Wrap(domain.ErrOrderNotFound, "filled"))

	report, err := o.Reconcile(ctx)
	require.NoError(t, err)

	require.Len(t, report.Gaps, 1)
	assert.Equal(t, "x-9", report.Gaps[0].Order.ID)
	require.Len(t, report.Settled, 1)
	assert.Equal(t, "b-7", *report.Settled[0].ExternalOrderID)

	rows, err := store.After(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "the sweep never writes")
}
