// Package canceller cancels open orders that drifted too far from the market.
package canceller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/metrics"
	"go.uber.org/zap"
)

type gateway interface {
	Balances(ctx context.Context, account domain.AccountID) ([]domain.Balance, error)
	PlaceOrder(ctx context.Context, account domain.AccountID, req domain.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) error
}

type ledgerWriter interface {
	AppendOrder(ctx context.Context, order domain.LedgerOrder) (uint64, error)
}

// Report outcome of reconciling one pair.
type Report struct {
	Canceled  []domain.OpenOrder
	Remaining []domain.OpenOrder
	// Liquidation ledger row of the defensive market sell, nil if none was placed.
	Liquidation *domain.LedgerOrder
}

// Canceller reconciles open orders of a pair against the current book.
type Canceller struct {
	gw          gateway
	ledger      ledgerWriter
	liquidation domain.LiquidationPolicy
	timeout     time.Duration
	now         func() time.Time
	l           *zap.Logger
}

// NewCanceller creates a Canceller. timeout bounds every gateway call.
func NewCanceller(l *zap.Logger, gw gateway, ledger ledgerWriter, liquidation domain.LiquidationPolicy, timeout time.Duration) *Canceller {
	return &Canceller{
		gw:          gw,
		ledger:      ledger,
		liquidation: liquidation,
		timeout:     timeout,
		now:         time.Now,
		l:           l,
	}
}

// Reconcile cancels every stale order in orders and settles the cycle's balances
// before returning, so the caller sizes new orders against freed capital.
// A gateway failure abandons the pair; a failed cancel-log write does not.
func (c *Canceller) Reconcile(ctx context.Context, cyc *domain.Cycle, policy domain.PairPolicy, orders []domain.OpenOrder, book domain.OrderBook) (Report, error) {
	var report Report
	staleSell := false

	for _, o := range orders {
		if !domain.IsStale(o, book, policy.OrderDisparity) {
			report.Remaining = append(report.Remaining, o)
			continue
		}

		if err := c.cancel(ctx, cyc, o); err != nil {
			return report, err
		}

		c.l.Info("canceled stale order",
			zap.String("pair", o.Pair.String()),
			zap.String("side", o.Side.String()),
			zap.String("order_id", o.ID),
			zap.String("price", o.LimitPrice.String()),
			zap.String("best_bid", book.BestBid.String()),
			zap.String("best_ask", book.BestAsk.String()))
		metrics.Cancels.WithLabelValues(cyc.Exchange, o.Side.String()).Inc()

		c.appendCancelRecord(ctx, cyc, o, book)
		report.Canceled = append(report.Canceled, o)
		if o.Side == domain.SideSell {
			staleSell = true
		}
	}

	if len(report.Canceled) == 0 {
		return report, nil
	}

	if err := c.refreshBalances(ctx, cyc); err != nil {
		return report, err
	}

	if staleSell && c.liquidation.Enabled {
		liquidation, err := c.liquidate(ctx, cyc, policy, book)
		if err != nil {
			return report, err
		}
		report.Liquidation = liquidation
	}

	return report, nil
}

func (c *Canceller) cancel(ctx context.Context, cyc *domain.Cycle, o domain.OpenOrder) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.gw.CancelOrder(callCtx, cyc.Account, o.Pair, o.ID); err != nil {
		return errors.Wrapf(err, "cancel order %s", o.ID)
	}
	return nil
}

func (c *Canceller) appendCancelRecord(ctx context.Context, cyc *domain.Cycle, o domain.OpenOrder, book domain.OrderBook) {
	reason := fmt.Sprintf("stale %s at %s, book %s/%s", o.Side, o.LimitPrice, book.BestBid, book.BestAsk)
	record := domain.NewCancelRecord(cyc.Exchange, o, reason, c.now())

	if _, err := c.ledger.AppendOrder(ctx, record); err != nil {
		// the order is gone from the book either way, it just stays linkable
		c.l.Error("failed to record cancellation",
			zap.String("pair", o.Pair.String()),
			zap.String("order_id", o.ID),
			zap.Bool("reconciliation_gap", true),
			zap.Error(err))
		metrics.LedgerGaps.WithLabelValues(cyc.Exchange).Inc()
	}
}

func (c *Canceller) refreshBalances(ctx context.Context, cyc *domain.Cycle) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	balances, err := c.gw.Balances(callCtx, cyc.Account)
	if err != nil {
		return errors.Wrap(err, "refresh balances after cancel")
	}
	cyc.SetBalances(balances)

	return nil
}

// liquidate market-sells the whole free base balance and halts buys on the pair.
func (c *Canceller) liquidate(ctx context.Context, cyc *domain.Cycle, policy domain.PairPolicy, book domain.OrderBook) (*domain.LedgerOrder, error) {
	pair := policy.Pair
	now := c.now()
	cyc.Halts.Set(pair, now, c.liquidation.HaltDuration)
	metrics.BuyHalted.WithLabelValues(cyc.Exchange, pair.String()).Set(1)

	qty := domain.Truncate(cyc.Balance(pair.From).Available)
	if !qty.IsPositive() {
		c.l.Info("buy halted, nothing to liquidate",
			zap.String("pair", pair.String()), zap.Duration("halt", c.liquidation.HaltDuration))
		return nil, nil
	}

	req := domain.OrderRequest{
		Pair:          pair,
		Side:          domain.SideSell,
		Type:          domain.OrderTypeMarket,
		Quantity:      domain.FormatFixed(qty),
		ClientOrderID: uuid.NewString(),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	externalID, err := c.gw.PlaceOrder(callCtx, cyc.Account, req)
	cancel()
	if err != nil {
		return nil, errors.Wrap(err, "defensive liquidation")
	}
	metrics.Liquidations.WithLabelValues(cyc.Exchange).Inc()

	c.l.Warn("defensive liquidation",
		zap.String("pair", pair.String()),
		zap.String("quantity", qty.String()),
		zap.String("order_id", externalID),
		zap.Time("buy_halted_until", now.Add(c.liquidation.HaltDuration)))

	record := domain.LedgerOrder{
		Quantity:        qty,
		Price:           book.BestBid,
		Side:            domain.SideSell,
		Pair:            pair,
		Exchange:        cyc.Exchange,
		Reason:          "defensive liquidation after stale sell",
		ExternalOrderID: &externalID,
		Timestamp:       now,
	}
	id, err := c.ledger.AppendOrder(ctx, record)
	if err != nil {
		c.l.Error("failed to record liquidation",
			zap.String("pair", pair.String()),
			zap.String("order_id", externalID),
			zap.Bool("reconciliation_gap", true),
			zap.Error(err))
		metrics.LedgerGaps.WithLabelValues(cyc.Exchange).Inc()
	} else {
		record.ID = id
	}

	if err := c.refreshBalances(ctx, cyc); err != nil {
		return &record, err
	}

	return &record, nil
}
