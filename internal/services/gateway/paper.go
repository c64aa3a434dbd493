package gateway

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/storage/simstate"
	"go.uber.org/zap"
)

const paperAccount domain.AccountID = "paper"

// DefaultPaperFee taker fee charged on every paper fill, taken from the received asset.
var DefaultPaperFee = decimal.NewFromFloat(0.001)

// marketData source of real quotes for paper fills.
type marketData interface {
	Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error)
	OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error)
}

type paperBalance struct {
	total  decimal.Decimal
	locked decimal.Decimal
}

// PaperGateway simulated exchange on top of live quotes. Limit orders rest
// until the book crosses them, market orders fill at the touch.
type PaperGateway struct {
	mu     sync.Mutex
	logger *zap.Logger
	market marketData
	fee    decimal.Decimal
	wallet map[string]*paperBalance
	orders map[string]domain.OpenOrder
	seq    uint64
	store  *simstate.Store
}

// NewPaperGateway creates a paper gateway. Persisted state in store, if any,
// overrides the initial wallet. store may be nil.
func NewPaperGateway(logger *zap.Logger, market marketData, store *simstate.Store, initial map[string]decimal.Decimal, fee decimal.Decimal) (*PaperGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if market == nil {
		return nil, errors.New("market data source is required for paper trading")
	}
	if fee.IsNegative() {
		return nil, errors.Errorf("paper fee must not be negative, got %s", fee)
	}

	g := &PaperGateway{
		logger: logger,
		market: market,
		fee:    fee,
		wallet: make(map[string]*paperBalance, len(initial)),
		orders: make(map[string]domain.OpenOrder),
		store:  store,
	}
	for currency, amount := range initial {
		g.wallet[strings.ToUpper(currency)] = &paperBalance{total: amount}
	}

	if err := g.restoreState(); err != nil {
		return nil, errors.Wrap(err, "restore paper state")
	}

	logger.Info("paper gateway init", zap.Int("currencies", len(g.wallet)), zap.Int("resting_orders", len(g.orders)))

	return g, nil
}

func (g *PaperGateway) Name() string { return NamePaper }

func (g *PaperGateway) Accounts(ctx context.Context) ([]domain.AccountID, error) {
	return []domain.AccountID{paperAccount}, nil
}

func (g *PaperGateway) Balances(ctx context.Context, account domain.AccountID) ([]domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	balances := make([]domain.Balance, 0, len(g.wallet))
	for currency, b := range g.wallet {
		balances = append(balances, domain.Balance{Currency: currency, Total: b.total, Available: b.total.Sub(b.locked)})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Currency < balances[j].Currency })

	return balances, nil
}

func (g *PaperGateway) Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error) {
	return g.market.Ticker(ctx, pair)
}

// OrderBook returns live quotes and settles every resting order they cross.
func (g *PaperGateway) OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error) {
	book, err := g.market.OrderBook(ctx, pair)
	if err != nil {
		return domain.OrderBook{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.match(pair, book)

	return book, nil
}

func (g *PaperGateway) OpenOrders(ctx context.Context, account domain.AccountID, pair domain.Pair) ([]domain.OpenOrder, error) {
	if _, err := g.OrderBook(ctx, pair); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.OpenOrder
	for _, o := range g.orders {
		if o.Pair == pair {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return orderSeq(out[i].ID) < orderSeq(out[j].ID) })

	return out, nil
}

func (g *PaperGateway) Order(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) (domain.OpenOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || o.Pair != pair {
		return domain.OpenOrder{}, errors.Wrapf(domain.ErrOrderNotFound, "paper order %s", orderID)
	}

	return o, nil
}

func (g *PaperGateway) PlaceOrder(ctx context.Context, account domain.AccountID, req domain.OrderRequest) (string, error) {
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil || !qty.IsPositive() {
		return "", errors.Errorf("paper order quantity must be positive, got %q", req.Quantity)
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		price, err := decimal.NewFromString(req.Price)
		if err != nil || !price.IsPositive() {
			return "", errors.Errorf("paper limit price must be positive, got %q", req.Price)
		}
		return g.placeLimit(req, price, qty)
	case domain.OrderTypeMarket:
		book, err := g.market.OrderBook(ctx, req.Pair)
		if err != nil {
			return "", err
		}
		if err := book.Validate(); err != nil {
			return "", err
		}
		return g.fillMarket(req, book, qty)
	default:
		return "", errors.Errorf("unsupported order type %q", req.Type)
	}
}

func (g *PaperGateway) CancelOrder(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || o.Pair != pair {
		return errors.Wrapf(domain.ErrOrderNotFound, "cancel paper order %s", orderID)
	}

	currency, amount := reserved(o)
	g.balance(currency).locked = g.balance(currency).locked.Sub(amount)
	delete(g.orders, orderID)
	g.persist()

	g.logger.Info("paper order canceled", zap.String("id", orderID), zap.String("pair", pair.String()))

	return nil
}

func (g *PaperGateway) placeLimit(req domain.OrderRequest, price, qty decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	o := domain.OpenOrder{
		ID:         strconv.FormatUint(g.seq, 10),
		Pair:       req.Pair,
		Side:       req.Side,
		LimitPrice: price,
		Quantity:   qty,
	}

	currency, amount := reserved(o)
	b := g.balance(currency)
	if available := b.total.Sub(b.locked); available.LessThan(amount) {
		g.seq--
		return "", errors.Wrapf(domain.ErrGateway, "insufficient %s balance: have %s need %s", currency, available, amount)
	}
	b.locked = b.locked.Add(amount)
	g.orders[o.ID] = o
	g.persist()

	g.logger.Info("paper limit order placed",
		zap.String("id", o.ID),
		zap.String("pair", o.Pair.String()),
		zap.String("side", o.Side.String()),
		zap.String("price", price.String()),
		zap.String("qty", qty.String()))

	return o.ID, nil
}

func (g *PaperGateway) fillMarket(req domain.OrderRequest, book domain.OrderBook, qty decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price := book.BestAsk
	if req.Side == domain.SideSell {
		price = book.BestBid
	}

	o := domain.OpenOrder{Pair: req.Pair, Side: req.Side, LimitPrice: price, Quantity: qty}
	currency, amount := reserved(o)
	b := g.balance(currency)
	if available := b.total.Sub(b.locked); available.LessThan(amount) {
		return "", errors.Wrapf(domain.ErrGateway, "insufficient %s balance: have %s need %s", currency, available, amount)
	}

	g.seq++
	o.ID = strconv.FormatUint(g.seq, 10)
	g.settle(o, false)
	g.persist()

	g.logger.Info("paper market order filled",
		zap.String("id", o.ID),
		zap.String("pair", o.Pair.String()),
		zap.String("side", o.Side.String()),
		zap.String("price", price.String()),
		zap.String("qty", qty.String()))

	return o.ID, nil
}

// match fills resting orders of pair crossed by book. Caller holds mu.
func (g *PaperGateway) match(pair domain.Pair, book domain.OrderBook) {
	if book.Validate() != nil {
		return
	}

	filled := false
	for id, o := range g.orders {
		if o.Pair != pair {
			continue
		}
		crossed := (o.Side == domain.SideBuy && book.BestAsk.LessThanOrEqual(o.LimitPrice)) ||
			(o.Side == domain.SideSell && book.BestBid.GreaterThanOrEqual(o.LimitPrice))
		if !crossed {
			continue
		}

		g.settle(o, true)
		delete(g.orders, id)
		filled = true

		g.logger.Info("paper limit order filled",
			zap.String("id", id),
			zap.String("pair", pair.String()),
			zap.String("side", o.Side.String()),
			zap.String("price", o.LimitPrice.String()),
			zap.String("qty", o.Quantity.String()))
	}

	if filled {
		g.persist()
	}
}

// settle moves funds for a fill at o.LimitPrice. Caller holds mu.
func (g *PaperGateway) settle(o domain.OpenOrder, wasResting bool) {
	keep := decimal.NewFromInt(1).Sub(g.fee)
	notional := o.LimitPrice.Mul(o.Quantity)

	spent, spentAmount := reserved(o)
	src := g.balance(spent)
	src.total = src.total.Sub(spentAmount)
	if wasResting {
		src.locked = src.locked.Sub(spentAmount)
	}

	if o.Side == domain.SideBuy {
		dst := g.balance(o.Pair.From)
		dst.total = dst.total.Add(o.Quantity.Mul(keep))
		return
	}
	dst := g.balance(o.Pair.To)
	dst.total = dst.total.Add(notional.Mul(keep))
}

func (g *PaperGateway) balance(currency string) *paperBalance {
	b, ok := g.wallet[currency]
	if !ok {
		b = &paperBalance{}
		g.wallet[currency] = b
	}
	return b
}

// reserved currency and amount an order ties up: quote for buys, base for sells.
func reserved(o domain.OpenOrder) (string, decimal.Decimal) {
	if o.Side == domain.SideBuy {
		return o.Pair.To, o.LimitPrice.Mul(o.Quantity)
	}
	return o.Pair.From, o.Quantity
}

func orderSeq(id string) uint64 {
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}

func (g *PaperGateway) restoreState() error {
	if g.store == nil {
		return nil
	}
	state, err := g.store.Load()
	if err != nil || state == nil {
		return err
	}

	wallet := make(map[string]*paperBalance, len(state.Wallet))
	for currency, sb := range state.Wallet {
		v, err := parseAll(fields{"total": sb.Total, "locked": sb.Locked})
		if err != nil {
			return errors.Wrapf(err, "decode %s balance", currency)
		}
		wallet[currency] = &paperBalance{total: v["total"], locked: v["locked"]}
	}

	orders := make(map[string]domain.OpenOrder, len(state.Orders))
	for _, so := range state.Orders {
		o, err := so.ToOpenOrder()
		if err != nil {
			return err
		}
		orders[o.ID] = o
	}

	g.wallet = wallet
	g.orders = orders
	g.seq = state.Seq

	return nil
}

func (g *PaperGateway) persist() {
	if g.store == nil {
		return
	}

	state := simstate.State{
		Wallet: make(map[string]simstate.StoredBalance, len(g.wallet)),
		Orders: make([]simstate.StoredOrder, 0, len(g.orders)),
		Seq:    g.seq,
	}
	for currency, b := range g.wallet {
		state.Wallet[currency] = simstate.StoredBalance{Total: b.total.String(), Locked: b.locked.String()}
	}
	for _, o := range g.orders {
		state.Orders = append(state.Orders, simstate.NewStoredOrder(o))
	}
	sort.Slice(state.Orders, func(i, j int) bool { return orderSeq(state.Orders[i].ID) < orderSeq(state.Orders[j].ID) })

	if err := g.store.Save(state); err != nil {
		g.logger.Warn("failed to persist paper state", zap.Error(err))
	}
}
