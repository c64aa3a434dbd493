package gateway

import (
	"context"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/pkg/retrier"
)

// binance error codes
const (
	binanceUnknownOrder  = -2011
	binanceOrderNotExist = -2013
)

const binanceSpotAccount domain.AccountID = "spot"

// BinanceGateway spot market gateway over the Binance REST API.
type BinanceGateway struct {
	client *binance.Client
	retry  *retrier.Retrier
}

// NewBinanceGateway creates a gateway. A client without keys serves public market data only.
func NewBinanceGateway(client *binance.Client) *BinanceGateway {
	return &BinanceGateway{client: client, retry: readRetrier()}
}

func (g *BinanceGateway) Name() string { return NameBinance }

// Accounts returns the single spot account.
func (g *BinanceGateway) Accounts(ctx context.Context) ([]domain.AccountID, error) {
	return []domain.AccountID{binanceSpotAccount}, nil
}

func (g *BinanceGateway) Balances(ctx context.Context, account domain.AccountID) ([]domain.Balance, error) {
	res, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) (*binance.Account, error) {
		return g.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return nil, gatewayError(err, "get binance account")
	}

	balances := make([]domain.Balance, 0, len(res.Balances))
	for _, b := range res.Balances {
		v, err := parseAll(fields{"free": b.Free, "locked": b.Locked})
		if err != nil {
			return nil, err
		}
		total := v["free"].Add(v["locked"])
		if total.IsZero() {
			continue
		}
		balances = append(balances, domain.Balance{Currency: b.Asset, Total: total, Available: v["free"]})
	}

	return balances, nil
}

func (g *BinanceGateway) Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error) {
	stats, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) ([]*binance.PriceChangeStats, error) {
		return g.client.NewListPriceChangeStatsService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return domain.Ticker{}, gatewayError(err, "get binance 24h stats")
	}
	if len(stats) == 0 || stats[0] == nil {
		return domain.Ticker{}, errors.Wrapf(domain.ErrInvalidMarketData, "binance returned no 24h stats for %s", pair)
	}

	s := stats[0]
	v, err := parseAll(fields{"high": s.HighPrice, "low": s.LowPrice, "last": s.LastPrice, "bid": s.BidPrice, "ask": s.AskPrice})
	if err != nil {
		return domain.Ticker{}, err
	}

	return domain.Ticker{High: v["high"], Low: v["low"], Last: v["last"], BestBid: v["bid"], BestAsk: v["ask"]}, nil
}

func (g *BinanceGateway) OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error) {
	tickers, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) ([]*binance.BookTicker, error) {
		return g.client.NewListBookTickersService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return domain.OrderBook{}, gatewayError(err, "get binance book ticker")
	}
	if len(tickers) == 0 || tickers[0] == nil {
		return domain.OrderBook{}, errors.Wrapf(domain.ErrInvalidMarketData, "binance returned no book ticker for %s", pair)
	}

	v, err := parseAll(fields{"bid": tickers[0].BidPrice, "ask": tickers[0].AskPrice})
	if err != nil {
		return domain.OrderBook{}, err
	}

	return domain.OrderBook{BestBid: v["bid"], BestAsk: v["ask"]}, nil
}

func (g *BinanceGateway) OpenOrders(ctx context.Context, account domain.AccountID, pair domain.Pair) ([]domain.OpenOrder, error) {
	orders, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) ([]*binance.Order, error) {
		return g.client.NewListOpenOrdersService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return nil, gatewayError(err, "list binance open orders")
	}

	out := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		open, err := binanceOpenOrder(pair, o)
		if err != nil {
			return nil, err
		}
		out = append(out, open)
	}

	return out, nil
}

// Order returns the order if it still rests on the book, domain.ErrOrderNotFound otherwise.
func (g *BinanceGateway) Order(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) (domain.OpenOrder, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return domain.OpenOrder{}, errors.Wrapf(domain.ErrOrderNotFound, "binance order id %q", orderID)
	}

	o, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) (*binance.Order, error) {
		o, err := g.client.NewGetOrderService().Symbol(pair.Symbol()).OrderID(id).Do(ctx)
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == binanceOrderNotExist {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "binance order %s", orderID)
		}
		return o, err
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.OpenOrder{}, err
	}
	if err != nil {
		return domain.OpenOrder{}, gatewayError(err, "get binance order")
	}

	switch o.Status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled:
		return binanceOpenOrder(pair, o)
	default:
		return domain.OpenOrder{}, errors.Wrapf(domain.ErrOrderNotFound, "binance order %s is %s", orderID, o.Status)
	}
}

func (g *BinanceGateway) PlaceOrder(ctx context.Context, account domain.AccountID, req domain.OrderRequest) (string, error) {
	svc := g.client.NewCreateOrderService().
		Symbol(req.Pair.Symbol()).
		Side(binanceSide(req.Side)).
		Quantity(req.Quantity).
		NewClientOrderID(req.ClientOrderID)

	switch req.Type {
	case domain.OrderTypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).TimeInForce(binance.TimeInForceTypeGTC).Price(req.Price)
	case domain.OrderTypeMarket:
		svc = svc.Type(binance.OrderTypeMarket)
	default:
		return "", errors.Errorf("unsupported order type %q", req.Type)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return "", gatewayError(err, "create binance order")
	}

	return strconv.FormatInt(res.OrderID, 10), nil
}

func (g *BinanceGateway) CancelOrder(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrapf(domain.ErrOrderNotFound, "binance order id %q", orderID)
	}

	_, err = g.client.NewCancelOrderService().Symbol(pair.Symbol()).OrderID(id).Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && (apiErr.Code == binanceUnknownOrder || apiErr.Code == binanceOrderNotExist) {
			return errors.Wrapf(domain.ErrOrderNotFound, "cancel binance order %s", orderID)
		}
		return gatewayError(err, "cancel binance order")
	}

	return nil
}

func binanceSide(s domain.Side) binance.SideType {
	if s == domain.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func binanceOpenOrder(pair domain.Pair, o *binance.Order) (domain.OpenOrder, error) {
	v, err := parseAll(fields{"price": o.Price, "orig_qty": o.OrigQuantity, "executed_qty": o.ExecutedQuantity})
	if err != nil {
		return domain.OpenOrder{}, err
	}

	side := domain.SideBuy
	if o.Side == binance.SideTypeSell {
		side = domain.SideSell
	}

	return domain.OpenOrder{
		ID:         strconv.FormatInt(o.OrderID, 10),
		Pair:       pair,
		Side:       side,
		LimitPrice: v["price"],
		Quantity:   v["orig_qty"].Sub(v["executed_qty"]),
	}, nil
}
