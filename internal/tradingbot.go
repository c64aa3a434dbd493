package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/spotchain/config"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/services/cycle"
)

type marketGateway interface {
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

// OrderLedger order ledger shared by every exchange worker.
type OrderLedger interface {
	AppendOrder(ctx context.Context, order domain.LedgerOrder) (uint64, error)
	FindLatestUnconsumed(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) (*domain.LedgerOrder, error)
	FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error)
	FindByExternalID(ctx context.Context, exchange, externalID string) (*domain.LedgerOrder, error)
}

// SnapshotWriter persists balance snapshots after every cycle.
type SnapshotWriter interface {
	Save(snapshot domain.BalanceSnapshot) error
}

type cycleRunner interface {
	RunCycle(ctx context.Context) (cycle.Report, error)
	Reconcile(ctx context.Context) (cycle.SweepReport, error)
	Exchange() string
}

// TradingBot runs the trading cycle of one exchange on a fixed interval.
type TradingBot struct {
	Config config.ExchangeConfig
	runner cycleRunner
}

// NewTradingBot creates a trading bot for one exchange. snapshots may be nil.
func NewTradingBot(logger *zap.Logger, conf config.ExchangeConfig, client any, ledger OrderLedger, snapshots SnapshotWriter) (*TradingBot, error) {
	if ledger == nil {
		return nil, errors.New("order ledger is required")
	}

	gw, err := newGateway(conf, client, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create market gateway")
	}

	cfg := cycle.Config{
		Account:        conf.Account,
		Pairs:          conf.Pairs,
		GatewayTimeout: conf.GatewayTimeout,
		Liquidation:    conf.Liquidation,
	}

	return &TradingBot{Config: conf, runner: cycle.NewOrchestrator(logger, cfg, gw, ledger, snapshots)}, nil
}

// Run executes a cycle right away and then on every poll interval until ctx is done.
// Cycles never overlap: a slow cycle delays the next tick.
func (b *TradingBot) Run(ctx context.Context, logger *zap.Logger) error {
	logger = logger.With(zap.String("exchange", b.runner.Exchange()))

	if b.Config.ReconcileOnStart {
		sweep, err := b.runner.Reconcile(ctx)
		if err != nil {
			logger.Error("startup reconciliation failed", zap.Error(err))
		} else {
			logger.Info("startup reconciliation done", zap.Int("gaps", len(sweep.Gaps)), zap.Int("settled", len(sweep.Settled)))
		}
	}

	interval := b.Config.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Starting trading loop", zap.Duration("poll_interval", interval), zap.Int("pairs", len(b.Config.Pairs)))

	b.runOnce(ctx, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Context done, stopping trading bot run loop.")
			return ctx.Err()
		case <-ticker.C:
			b.runOnce(ctx, logger)
		}
	}
}

func (b *TradingBot) runOnce(ctx context.Context, logger *zap.Logger) {
	report, err := b.runner.RunCycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Trading cycle failed", zap.Error(err))
		}
		return
	}

	placed, failed := 0, 0
	for _, pr := range report.Pairs {
		placed += len(pr.Placed)
		if pr.Err != nil {
			failed++
		}
	}
	logger.Debug("Trading cycle done",
		zap.Int("pairs", len(report.Pairs)),
		zap.Int("placed", placed),
		zap.Int("failed_pairs", failed))
}
