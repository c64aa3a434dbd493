package gateway

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/pkg/retrier"
)

const (
	bybitCategorySpot = "spot"
	// DefaultBybitAccount unified trading account type.
	DefaultBybitAccount domain.AccountID = "UNIFIED"
)

// BybitGateway spot market gateway over the Bybit V5 API.
// The SDK does not accept a context, so cancellation is honored between retries only.
type BybitGateway struct {
	client      *bybit.Client
	accountType domain.AccountID
	retry       *retrier.Retrier
}

// NewBybitGateway creates a gateway for the given wallet type. Empty accountType selects UNIFIED.
func NewBybitGateway(client *bybit.Client, accountType domain.AccountID) *BybitGateway {
	if accountType == "" {
		accountType = DefaultBybitAccount
	}
	return &BybitGateway{client: client, accountType: accountType, retry: readRetrier()}
}

func (g *BybitGateway) Name() string { return NameBybit }

func (g *BybitGateway) Accounts(ctx context.Context) ([]domain.AccountID, error) {
	return []domain.AccountID{g.accountType}, nil
}

func (g *BybitGateway) Balances(ctx context.Context, account domain.AccountID) ([]domain.Balance, error) {
	res, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) (*bybit.V5GetWalletBalanceResponse, error) {
		return g.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5(account), nil)
	})
	if err != nil {
		return nil, gatewayError(err, "get bybit wallet balance")
	}

	var balances []domain.Balance
	for _, wallet := range res.Result.List {
		for _, coin := range wallet.Coin {
			v, err := parseAll(fields{"wallet": coin.WalletBalance, "locked": coin.Locked})
			if err != nil {
				return nil, err
			}
			if v["wallet"].IsZero() {
				continue
			}
			balances = append(balances, domain.Balance{
				Currency:  string(coin.Coin),
				Total:     v["wallet"],
				Available: v["wallet"].Sub(v["locked"]),
			})
		}
	}

	return balances, nil
}

func (g *BybitGateway) ticker(ctx context.Context, pair domain.Pair) (*bybit.V5GetTickersSpotItem, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	res, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) (*bybit.V5GetTickersResponse, error) {
		return g.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: bybitCategorySpot,
			Symbol:   &symbol,
		})
	})
	if err != nil {
		return nil, gatewayError(err, "get bybit tickers")
	}
	if res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
		return nil, errors.Wrapf(domain.ErrInvalidMarketData, "bybit returned no ticker for %s", pair)
	}

	return &res.Result.Spot.List[0], nil
}

func (g *BybitGateway) Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error) {
	t, err := g.ticker(ctx, pair)
	if err != nil {
		return domain.Ticker{}, err
	}

	v, err := parseAll(fields{"high": t.HighPrice24H, "low": t.LowPrice24H, "last": t.LastPrice, "bid": t.Bid1Price, "ask": t.Ask1Price})
	if err != nil {
		return domain.Ticker{}, err
	}

	return domain.Ticker{High: v["high"], Low: v["low"], Last: v["last"], BestBid: v["bid"], BestAsk: v["ask"]}, nil
}

// OrderBook reads the top of book from the ticker, which carries the level-1 quotes.
func (g *BybitGateway) OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error) {
	t, err := g.ticker(ctx, pair)
	if err != nil {
		return domain.OrderBook{}, err
	}

	v, err := parseAll(fields{"bid": t.Bid1Price, "ask": t.Ask1Price})
	if err != nil {
		return domain.OrderBook{}, err
	}

	return domain.OrderBook{BestBid: v["bid"], BestAsk: v["ask"]}, nil
}

func (g *BybitGateway) openOrders(ctx context.Context, pair domain.Pair, orderID *string) ([]domain.OpenOrder, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	res, err := retrier.DoWithData(g.retry, ctx, func(ctx context.Context) (*bybit.V5GetOrdersResponse, error) {
		return g.client.V5().Order().GetOpenOrders(bybit.V5GetOpenOrdersParam{
			Category: bybitCategorySpot,
			Symbol:   &symbol,
			OrderID:  orderID,
		})
	})
	if err != nil {
		return nil, gatewayError(err, "get bybit open orders")
	}

	out := make([]domain.OpenOrder, 0, len(res.Result.List))
	for _, o := range res.Result.List {
		v, err := parseAll(fields{"price": o.Price, "qty": o.Qty, "cum_exec_qty": o.CumExecQty})
		if err != nil {
			return nil, err
		}

		side := domain.SideBuy
		if o.Side == bybit.SideSell {
			side = domain.SideSell
		}

		out = append(out, domain.OpenOrder{
			ID:         o.OrderID,
			Pair:       pair,
			Side:       side,
			LimitPrice: v["price"],
			Quantity:   v["qty"].Sub(v["cum_exec_qty"]),
		})
	}

	return out, nil
}

func (g *BybitGateway) OpenOrders(ctx context.Context, account domain.AccountID, pair domain.Pair) ([]domain.OpenOrder, error) {
	return g.openOrders(ctx, pair, nil)
}

// Order looks the id up among realtime open orders. Filled or canceled orders drop out of that list.
func (g *BybitGateway) Order(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) (domain.OpenOrder, error) {
	orders, err := g.openOrders(ctx, pair, &orderID)
	if err != nil {
		return domain.OpenOrder{}, err
	}
	for _, o := range orders {
		if o.ID == orderID {
			return o, nil
		}
	}

	return domain.OpenOrder{}, errors.Wrapf(domain.ErrOrderNotFound, "bybit order %s", orderID)
}

func (g *BybitGateway) PlaceOrder(ctx context.Context, account domain.AccountID, req domain.OrderRequest) (string, error) {
	side := bybit.SideBuy
	if req.Side == domain.SideSell {
		side = bybit.SideSell
	}

	param := bybit.V5CreateOrderParam{
		Category: bybitCategorySpot,
		Symbol:   bybit.SymbolV5(req.Pair.Symbol()),
		Side:     side,
		Qty:      req.Quantity,
	}
	if req.ClientOrderID != "" {
		linkID := req.ClientOrderID
		param.OrderLinkID = &linkID
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		price := req.Price
		param.OrderType = bybit.OrderTypeLimit
		param.Price = &price
	case domain.OrderTypeMarket:
		// only sells go out at market; bybit sizes spot market sells in base currency
		param.OrderType = bybit.OrderTypeMarket
	default:
		return "", errors.Errorf("unsupported order type %q", req.Type)
	}

	res, err := g.client.V5().Order().CreateOrder(param)
	if err != nil {
		return "", gatewayError(err, "create bybit order")
	}

	return res.Result.OrderID, nil
}

func (g *BybitGateway) CancelOrder(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) error {
	id := orderID
	_, err := g.client.V5().Order().CancelOrder(bybit.V5CancelOrderParam{
		Category: bybitCategorySpot,
		Symbol:   bybit.SymbolV5(pair.Symbol()),
		OrderID:  &id,
	})
	if err != nil {
		return gatewayError(err, "cancel bybit order")
	}

	return nil
}
