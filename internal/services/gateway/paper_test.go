package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/storage/simstate"
	"go.uber.org/zap"
)

var btcUsdt = domain.Pair{From: "BTC", To: "USDT"}

// stubMarket serves fixed quotes.
type stubMarket struct {
	book domain.OrderBook
}

func (m *stubMarket) Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error) {
	return domain.Ticker{High: m.book.BestAsk, Low: m.book.BestBid, Last: m.book.BestBid, BestBid: m.book.BestBid, BestAsk: m.book.BestAsk}, nil
}

func (m *stubMarket) OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error) {
	return m.book, nil
}

func newPaper(t *testing.T, market *stubMarket, store *simstate.Store, fee decimal.Decimal) *PaperGateway {
	t.Helper()
	g, err := NewPaperGateway(zap.NewNop(), market, store, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1000)}, fee)
	require.NoError(t, err)
	return g
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func balanceOf(t *testing.T, g *PaperGateway, currency string) domain.Balance {
	t.Helper()
	balances, err := g.Balances(context.Background(), paperAccount)
	require.NoError(t, err)
	for _, b := range balances {
		if b.Currency == currency {
			return b
		}
	}
	return domain.Balance{Currency: currency}
}

func TestPaperGateway_LimitBuyRestsUntilCrossed(t *testing.T) {
	ctx := context.Background()
	market := &stubMarket{book: domain.OrderBook{BestBid: dec("100"), BestAsk: dec("101")}}
	g := newPaper(t, market, nil, decimal.Zero)

	id, err := g.PlaceOrder(ctx, paperAccount, domain.OrderRequest{
		Pair: btcUsdt, Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: "99.00000000", Quantity: "2.00000000",
	})
	require.NoError(t, err)

	usdt := balanceOf(t, g, "USDT")
	assert.True(t, usdt.Total.Equal(dec("1000")))
	assert.True(t, usdt.Available.Equal(dec("802")))

	open, err := g.OpenOrders(ctx, paperAccount, btcUsdt)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)

	market.book = domain.OrderBook{BestBid: dec("98"), BestAsk: dec("99")}
	open, err = g.OpenOrders(ctx, paperAccount, btcUsdt)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = g.Order(ctx, paperAccount, btcUsdt, id)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	usdt = balanceOf(t, g, "USDT")
	assert.True(t, usdt.Total.Equal(dec("802")))
	assert.True(t, usdt.Available.Equal(dec("802")))
	assert.True(t, balanceOf(t, g, "BTC").Total.Equal(dec("2")))
}

func TestPaperGateway_InsufficientBalance(t *testing.T) {
	g := newPaper(t, &stubMarket{book: domain.OrderBook{BestBid: dec("100"), BestAsk: dec("101")}}, nil, decimal.Zero)

	_, err := g.PlaceOrder(context.Background(), paperAccount, domain.OrderRequest{
		Pair: btcUsdt, Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: "100", Quantity: "20",
	})
	require.ErrorIs(t, err, domain.ErrGateway)
}

func TestPaperGateway_CancelReleasesLock(t *testing.T) {
	ctx := context.Background()
	g := newPaper(t, &stubMarket{book: domain.OrderBook{BestBid: dec("100"), BestAsk: dec("101")}}, nil, decimal.Zero)

	id, err := g.PlaceOrder(ctx, paperAccount, domain.OrderRequest{
		Pair: btcUsdt, Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: "50", Quantity: "1",
	})
	require.NoError(t, err)
	require.NoError(t, g.CancelOrder(ctx, paperAccount, btcUsdt, id))

	assert.True(t, balanceOf(t, g, "USDT").Available.Equal(dec("1000")))
	require.ErrorIs(t, g.CancelOrder(ctx, paperAccount, btcUsdt, id), domain.ErrOrderNotFound)
}

func TestPaperGateway_MarketOrdersWithFee(t *testing.T) {
	ctx := context.Background()
	g := newPaper(t, &stubMarket{book: domain.OrderBook{BestBid: dec("100"), BestAsk: dec("125")}}, nil, dec("0.001"))

	_, err := g.PlaceOrder(ctx, paperAccount, domain.OrderRequest{
		Pair: btcUsdt, Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: "4",
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, g, "USDT").Total.Equal(dec("500")))
	assert.True(t, balanceOf(t, g, "BTC").Total.Equal(dec("3.996")))

	_, err = g.PlaceOrder(ctx, paperAccount, domain.OrderRequest{
		Pair: btcUsdt, Side: domain.SideSell, Type: domain.OrderTypeMarket, Quantity: "3.996",
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, g, "BTC").Total.IsZero())
	assert.True(t, balanceOf(t, g, "USDT").Total.Equal(dec("899.2004")))
}

func TestPaperGateway_RestoresState(t *testing.T) {
	ctx := context.Background()
	store, err := simstate.NewStore(t.TempDir(), "paper")
	require.NoError(t, err)
	market := &stubMarket{book: domain.OrderBook{BestBid: dec("100"), BestAsk: dec("101")}}

	g := newPaper(t, market, store, decimal.Zero)
	id, err := g.PlaceOrder(ctx, paperAccount, domain.OrderRequest{
		Pair: btcUsdt, Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: "90", Quantity: "1",
	})
	require.NoError(t, err)

	restored := newPaper(t, market, store, decimal.Zero)
	o, err := restored.Order(ctx, paperAccount, btcUsdt, id)
	require.NoError(t, err)
	assert.True(t, o.LimitPrice.Equal(dec("90")))
	assert.True(t, balanceOf(t, restored, "USDT").Available.Equal(dec("910")))

	next, err := restored.PlaceOrder(ctx, paperAccount, domain.OrderRequest{
		Pair: btcUsdt, Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: "90", Quantity: "1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}
