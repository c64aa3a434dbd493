package cycle

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/metrics"
	"go.uber.org/zap"
)

// Gap exchange order the ledger does not know about.
type Gap struct {
	Pair  domain.Pair
	Order domain.OpenOrder
}

// SweepReport result of a startup reconciliation sweep.
type SweepReport struct {
	Gaps []Gap
	// Settled ledger references that no longer rest on the book (filled or canceled elsewhere).
	Settled []domain.LedgerOrder
}

// Reconcile compares exchange state with the ledger and logs the differences.
// It never writes to the exchange or the ledger.
func (o *Orchestrator) Reconcile(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	account, err := o.resolveAccount(ctx)
	if err != nil {
		return report, err
	}

	for _, policy := range o.cfg.Pairs {
		pair := policy.Pair

		callCtx, cancel := o.call(ctx)
		open, err := o.gw.OpenOrders(callCtx, account, pair)
		cancel()
		if err != nil {
			return report, errors.Wrapf(err, "fetch open orders for %s", pair)
		}

		for _, ord := range open {
			known, err := o.ledger.FindByExternalID(ctx, o.cfg.Exchange, ord.ID)
			if err != nil {
				return report, err
			}
			if known != nil {
				continue
			}

			o.l.Error("open order missing from ledger",
				zap.String("pair", pair.String()),
				zap.String("order_id", ord.ID),
				zap.String("side", ord.Side.String()),
				zap.String("price", ord.LimitPrice.String()),
				zap.String("quantity", ord.Quantity.String()),
				zap.Bool("reconciliation_gap", true))
			metrics.LedgerGaps.WithLabelValues(o.cfg.Exchange).Inc()
			report.Gaps = append(report.Gaps, Gap{Pair: pair, Order: ord})
		}

		for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
			ref, err := o.ledger.FindLatestUnconsumed(ctx, pair, o.cfg.Exchange, side)
			if err != nil {
				return report, err
			}
			if ref == nil || ref.ExternalOrderID == nil {
				continue
			}

			callCtx, cancel := o.call(ctx)
			_, err = o.gw.Order(callCtx, account, pair, *ref.ExternalOrderID)
			cancel()
			switch {
			case errors.Is(err, domain.ErrOrderNotFound):
				o.l.Info("reference order no longer resting",
					zap.String("pair", pair.String()),
					zap.Uint64("ledger_id", ref.ID),
					zap.String("order_id", *ref.ExternalOrderID))
				report.Settled = append(report.Settled, *ref)
			case err != nil:
				return report, errors.Wrapf(err, "fetch order %s", *ref.ExternalOrderID)
			}
		}
	}

	o.l.Info("reconciliation sweep done",
		zap.Int("gaps", len(report.Gaps)),
		zap.Int("settled_references", len(report.Settled)))

	return report, nil
}
