// Package cycle runs the per-exchange trading cycle over the configured pairs.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/metrics"
	"github.com/vadiminshakov/spotchain/internal/services/canceller"
	"github.com/vadiminshakov/spotchain/internal/services/chain"
	"go.uber.org/zap"
)

// Steps of a pair cycle, used to label failures.
const (
	StepBalances  = "balances"
	StepSpread    = "spread"
	StepOrderBook = "orderbook"
	StepOpen      = "open_orders"
	StepReconcile = "reconcile"
	StepBuy       = "buy"
	StepSell      = "sell"
)

// Skip reasons of a leg or a whole pair.
const (
	SkipSpread       = "spread"
	SkipBuyHalted    = "buy_halted"
	SkipResting      = "resting_order"
	SkipInsufficient = "insufficient_balance"
	SkipBelowMinimum = "below_minimum"
)

type gateway interface {
	Name() string
	Accounts(ctx context.Context) ([]domain.AccountID, error)
	Balances(ctx context.Context, account domain.AccountID) ([]domain.Balance, error)
	Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error)
	OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error)
	OpenOrders(ctx context.Context, account domain.AccountID, pair domain.Pair) ([]domain.OpenOrder, error)
	Order(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) (domain.OpenOrder, error)
	PlaceOrder(ctx context.Context, account domain.AccountID, req domain.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) error
}

type orderLedger interface {
	AppendOrder(ctx context.Context, order domain.LedgerOrder) (uint64, error)
	FindLatestUnconsumed(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) (*domain.LedgerOrder, error)
	FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error)
	FindByExternalID(ctx context.Context, exchange, externalID string) (*domain.LedgerOrder, error)
}

type snapshotWriter interface {
	Save(snapshot domain.BalanceSnapshot) error
}

// Config cycle settings of one exchange.
type Config struct {
	// Exchange ledger tag, defaults to the gateway name.
	Exchange string
	// Account to trade, the first account reported by the gateway when empty.
	Account        domain.AccountID
	Pairs          []domain.PairPolicy
	GatewayTimeout time.Duration
	Liquidation    domain.LiquidationPolicy
}

// PairReport what a cycle did for one pair.
type PairReport struct {
	Pair     domain.Pair
	Spread   decimal.Decimal
	Skipped  string
	BuySkip  string
	SellSkip string
	Canceled []domain.OpenOrder
	Placed   []domain.LedgerOrder
	// Step where the pair failed, empty on success.
	Step string
	Err  error
}

// Report result of one cycle.
type Report struct {
	Exchange string
	Started  time.Time
	Pairs    []PairReport
}

// Orchestrator sequences spread gate, reconciliation, allocation, chaining and
// pricing for every pair of one exchange. Not safe for concurrent cycles; each
// exchange owns one Orchestrator.
type Orchestrator struct {
	cfg       Config
	gw        gateway
	ledger    orderLedger
	resolver  *chain.Resolver
	canceller *canceller.Canceller
	snapshots snapshotWriter
	halts     domain.BuyHalts
	account   domain.AccountID
	now       func() time.Time
	l         *zap.Logger
}

// NewOrchestrator creates an Orchestrator. snapshots may be nil.
func NewOrchestrator(l *zap.Logger, cfg Config, gw gateway, ledger orderLedger, snapshots snapshotWriter) *Orchestrator {
	if cfg.Exchange == "" {
		cfg.Exchange = gw.Name()
	}
	l = l.With(zap.String("exchange", cfg.Exchange))

	return &Orchestrator{
		cfg:       cfg,
		gw:        gw,
		ledger:    ledger,
		resolver:  chain.NewResolver(l, ledger),
		canceller: canceller.NewCanceller(l, gw, ledger, cfg.Liquidation, cfg.GatewayTimeout),
		snapshots: snapshots,
		halts:     domain.BuyHalts{},
		account:   cfg.Account,
		now:       time.Now,
		l:         l,
	}
}

// Exchange returns the ledger tag of the exchange.
func (o *Orchestrator) Exchange() string {
	return o.cfg.Exchange
}

func (o *Orchestrator) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.GatewayTimeout)
}

func (o *Orchestrator) resolveAccount(ctx context.Context) (domain.AccountID, error) {
	if o.account != "" {
		return o.account, nil
	}

	callCtx, cancel := o.call(ctx)
	defer cancel()

	accounts, err := o.gw.Accounts(callCtx)
	if err != nil {
		return "", errors.Wrap(err, "list accounts")
	}
	if len(accounts) == 0 {
		return "", errors.Wrap(domain.ErrGateway, "exchange reported no accounts")
	}
	o.account = accounts[0]

	return o.account, nil
}

func (o *Orchestrator) refreshBalances(ctx context.Context, cyc *domain.Cycle) error {
	callCtx, cancel := o.call(ctx)
	defer cancel()

	balances, err := o.gw.Balances(callCtx, cyc.Account)
	if err != nil {
		return errors.Wrap(err, "fetch balances")
	}
	cyc.SetBalances(balances)

	return nil
}

// RunCycle processes every pair once, sequentially. A pair failure is logged and
// recorded in the report; the remaining pairs still run. The returned error is
// set only when the cycle could not start at all.
func (o *Orchestrator) RunCycle(ctx context.Context) (Report, error) {
	started := o.now()
	report := Report{Exchange: o.cfg.Exchange, Started: started}
	defer func() {
		metrics.CycleDuration.WithLabelValues(o.cfg.Exchange).Observe(time.Since(started).Seconds())
	}()

	account, err := o.resolveAccount(ctx)
	if err != nil {
		metrics.PairFailures.WithLabelValues(o.cfg.Exchange, StepBalances).Inc()
		return report, err
	}

	cyc := domain.NewCycle(o.cfg.Exchange, account, o.halts, started)
	if err := o.refreshBalances(ctx, cyc); err != nil {
		metrics.PairFailures.WithLabelValues(o.cfg.Exchange, StepBalances).Inc()
		return report, err
	}

	for _, policy := range o.cfg.Pairs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		pr := o.runPair(ctx, cyc, policy)
		if pr.Err != nil {
			o.l.Error("pair cycle failed",
				zap.String("pair", policy.Pair.String()),
				zap.String("step", pr.Step),
				zap.Error(pr.Err))
			metrics.PairFailures.WithLabelValues(o.cfg.Exchange, pr.Step).Inc()
		}
		report.Pairs = append(report.Pairs, pr)
	}

	o.saveSnapshot(cyc)

	return report, nil
}

func (o *Orchestrator) runPair(ctx context.Context, cyc *domain.Cycle, policy domain.PairPolicy) PairReport {
	pair := policy.Pair
	pr := PairReport{Pair: pair}
	fail := func(step string, err error) PairReport {
		pr.Step = step
		pr.Err = err
		return pr
	}
	l := o.l.With(zap.String("pair", pair.String()))

	callCtx, cancel := o.call(ctx)
	ticker, err := o.gw.Ticker(callCtx, pair)
	cancel()
	if err != nil {
		return fail(StepSpread, errors.Wrap(err, "fetch ticker"))
	}

	verdict, err := domain.EvaluateSpread(ticker, policy.SpreadCutPercent)
	if err != nil {
		return fail(StepSpread, err)
	}
	pr.Spread = verdict.Spread
	spreadF, _ := verdict.Spread.Float64()
	metrics.Spread.WithLabelValues(o.cfg.Exchange, pair.String()).Set(spreadF)

	if !verdict.Allowed {
		l.Info("spread outside band, skipping pair",
			zap.String("spread", verdict.Spread.StringFixed(4)),
			zap.String("cut", policy.SpreadCutPercent.String()))
		metrics.SpreadSkips.WithLabelValues(o.cfg.Exchange, pair.String()).Inc()
		pr.Skipped = SkipSpread
		return pr
	}

	callCtx, cancel = o.call(ctx)
	book, err := o.gw.OrderBook(callCtx, pair)
	cancel()
	if err != nil {
		return fail(StepOrderBook, errors.Wrap(err, "fetch order book"))
	}
	if err := book.Validate(); err != nil {
		return fail(StepOrderBook, err)
	}

	callCtx, cancel = o.call(ctx)
	open, err := o.gw.OpenOrders(callCtx, cyc.Account, pair)
	cancel()
	if err != nil {
		return fail(StepOpen, errors.Wrap(err, "fetch open orders"))
	}

	reconciled, err := o.canceller.Reconcile(ctx, cyc, policy, open, book)
	pr.Canceled = reconciled.Canceled
	if err != nil {
		return fail(StepReconcile, err)
	}
	if reconciled.Liquidation != nil {
		pr.Placed = append(pr.Placed, *reconciled.Liquidation)
	}

	if skip := o.buySkipReason(cyc, pair, reconciled.Remaining); skip != "" {
		pr.BuySkip = skip
		l.Debug("buy leg skipped", zap.String("reason", skip))
	} else {
		placed, skip, err := o.buyLeg(ctx, cyc, policy, book)
		if err != nil {
			return fail(StepBuy, err)
		}
		pr.BuySkip = skip
		if placed != nil {
			pr.Placed = append(pr.Placed, *placed)
		}
	}

	if hasResting(reconciled.Remaining, domain.SideSell) {
		pr.SellSkip = SkipResting
		l.Debug("sell leg skipped", zap.String("reason", SkipResting))
		return pr
	}

	placed, skip, err := o.sellLeg(ctx, cyc, policy, book)
	if err != nil {
		return fail(StepSell, err)
	}
	pr.SellSkip = skip
	if placed != nil {
		pr.Placed = append(pr.Placed, *placed)
	}

	return pr
}

func (o *Orchestrator) buySkipReason(cyc *domain.Cycle, pair domain.Pair, remaining []domain.OpenOrder) string {
	if cyc.Halts.Active(pair, o.now()) {
		return SkipBuyHalted
	}
	metrics.BuyHalted.WithLabelValues(o.cfg.Exchange, pair.String()).Set(0)

	if hasResting(remaining, domain.SideBuy) {
		return SkipResting
	}

	return ""
}

func hasResting(orders []domain.OpenOrder, side domain.Side) bool {
	for _, ord := range orders {
		if ord.Side == side {
			return true
		}
	}
	return false
}

func (o *Orchestrator) buyLeg(ctx context.Context, cyc *domain.Cycle, policy domain.PairPolicy, book domain.OrderBook) (*domain.LedgerOrder, string, error) {
	pair := policy.Pair

	alloc, ok := domain.AllocateBuy(cyc.Balance(pair.To), policy.QuoteAllocationCut, policy.MinOrderValue)
	if !ok {
		return nil, SkipInsufficient, nil
	}

	link := o.resolver.Resolve(ctx, pair, cyc.Exchange, domain.SideSell)
	quote, err := domain.PriceOrder(domain.PriceRequest{
		Side:      domain.SideBuy,
		Book:      book,
		Margin:    policy.Margin,
		Linked:    link.Link,
		Disparity: policy.OrderDisparity,
	})
	if err != nil {
		return nil, "", err
	}

	qty := domain.Truncate(alloc.Amount.Div(quote.Price))
	if !qty.GreaterThan(policy.MinBaseQuantity) {
		o.l.Debug("buy quantity below minimum",
			zap.String("pair", pair.String()),
			zap.String("quantity", qty.String()),
			zap.String("min_base_quantity", policy.MinBaseQuantity.String()))
		return nil, SkipBelowMinimum, nil
	}

	placed, err := o.place(ctx, cyc, pair, domain.SideBuy, quote, qty, link, alloc)
	return placed, "", err
}

func (o *Orchestrator) sellLeg(ctx context.Context, cyc *domain.Cycle, policy domain.PairPolicy, book domain.OrderBook) (*domain.LedgerOrder, string, error) {
	pair := policy.Pair

	alloc, ok := domain.AllocateSell(cyc.Balance(pair.From), policy.BaseAllocationCut, policy.MinBaseQuantity)
	if !ok {
		return nil, SkipInsufficient, nil
	}

	link := o.resolver.Resolve(ctx, pair, cyc.Exchange, domain.SideBuy)
	quote, err := domain.PriceOrder(domain.PriceRequest{
		Side:      domain.SideSell,
		Book:      book,
		Margin:    policy.Margin,
		Linked:    link.Link,
		Disparity: policy.OrderDisparity,
	})
	if err != nil {
		return nil, "", err
	}

	qty := domain.Truncate(alloc.Amount)
	if !qty.Mul(quote.Price).GreaterThan(policy.MinOrderValue) {
		o.l.Debug("sell value below minimum",
			zap.String("pair", pair.String()),
			zap.String("value", qty.Mul(quote.Price).String()),
			zap.String("min_order_value", policy.MinOrderValue.String()))
		return nil, SkipBelowMinimum, nil
	}

	placed, err := o.place(ctx, cyc, pair, domain.SideSell, quote, qty, link, alloc)
	return placed, "", err
}

// place submits a limit order and records it. Placement is never retried here.
// Once the exchange accepted the order a ledger failure is only logged, the
// order is live and the pair carries on.
func (o *Orchestrator) place(
	ctx context.Context,
	cyc *domain.Cycle,
	pair domain.Pair,
	side domain.Side,
	quote domain.PriceQuote,
	qty decimal.Decimal,
	link chain.Resolution,
	alloc domain.Allocation,
) (*domain.LedgerOrder, error) {
	req := domain.OrderRequest{
		Pair:          pair,
		Side:          side,
		Type:          domain.OrderTypeLimit,
		Price:         domain.FormatFixed(quote.Price),
		Quantity:      domain.FormatFixed(qty),
		ClientOrderID: uuid.NewString(),
	}

	callCtx, cancel := o.call(ctx)
	externalID, err := o.gw.PlaceOrder(callCtx, cyc.Account, req)
	cancel()
	if err != nil {
		return nil, errors.Wrapf(err, "place %s order", side)
	}
	metrics.OrdersPlaced.WithLabelValues(cyc.Exchange, side.String(), string(domain.OrderTypeLimit), string(quote.Source)).Inc()

	record := domain.LedgerOrder{
		Quantity:        qty,
		Price:           quote.Price,
		Side:            side,
		Pair:            pair,
		Exchange:        cyc.Exchange,
		Reason:          placementReason(quote, link, alloc),
		ExternalOrderID: &externalID,
		Timestamp:       o.now(),
	}
	if quote.Source == domain.PriceSourceLinked && link.Link != nil {
		basedOn := link.Link.ID
		record.BasedOnOrderID = &basedOn
	}

	fields := []zap.Field{
		zap.String("pair", pair.String()),
		zap.String("side", side.String()),
		zap.String("price", req.Price),
		zap.String("quantity", req.Quantity),
		zap.String("order_id", externalID),
		zap.String("price_source", string(quote.Source)),
	}
	if record.BasedOnOrderID != nil {
		fields = append(fields, zap.Uint64("based_on", *record.BasedOnOrderID))
	}

	id, err := o.ledger.AppendOrder(ctx, record)
	if err != nil {
		o.l.Error("order placed but not recorded", append(fields,
			zap.Bool("reconciliation_gap", true),
			zap.Error(err))...)
		metrics.LedgerGaps.WithLabelValues(cyc.Exchange).Inc()
	} else {
		record.ID = id
		o.l.Info("order placed", append(fields, zap.Uint64("ledger_id", id))...)
	}

	if err := o.refreshBalances(ctx, cyc); err != nil {
		return &record, err
	}

	return &record, nil
}

func placementReason(quote domain.PriceQuote, link chain.Resolution, alloc domain.Allocation) string {
	reason := fmt.Sprintf("%s price, allocation %s", quote.Source, alloc.Tier)
	switch {
	case quote.Source == domain.PriceSourceLinked:
		reason += fmt.Sprintf(", based on #%d at %s", link.Link.ID, link.Link.Price)
	case quote.LinkDiscarded:
		reason += fmt.Sprintf(", link #%d discarded: beyond disparity", link.Link.ID)
	case link.Outcome != chain.OutcomeLinked:
		reason += ", link " + string(link.Outcome)
	}
	if quote.Clamped {
		reason += ", clamped to book"
	}
	return reason
}

func (o *Orchestrator) saveSnapshot(cyc *domain.Cycle) {
	if o.snapshots == nil {
		return
	}

	snapshot := domain.NewBalanceSnapshot(o.now(), cyc.Exchange, cyc.Account, cyc.Balances)
	if err := o.snapshots.Save(snapshot); err != nil {
		o.l.Warn("failed to save balance snapshot", zap.Error(err))
	}
}
