// Command spotchain runs the spot order engine against one or more exchanges.
// Each exchange gets its own worker; pairs of one exchange run sequentially.
//
// Usage:
//
//	spotchain --config config.yaml
//	spotchain --setup (interactive wizard, writes config.gen.yaml)
//
// Required environment variables (a .env file is loaded if present):
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/spotchain/config"
	"github.com/vadiminshakov/spotchain/internal"
	"github.com/vadiminshakov/spotchain/internal/setup"
	"github.com/vadiminshakov/spotchain/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/spotchain/internal/storage/ledger"
	"github.com/vadiminshakov/spotchain/internal/web"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	conf, err := config.Get(setup.RunTUI)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(conf, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("spotchain stopped", zap.Error(err))
	}
	logger.Info("spotchain stopped")
}

func run(conf config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orders, err := ledger.Open(conf.LedgerBackend, conf.LedgerDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := orders.Close(); err != nil {
			logger.Error("close ledger", zap.Error(err))
		}
	}()

	snapshots, err := balancesnapshots.NewWALStore(conf.SnapshotDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			logger.Error("close balance snapshots", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	for _, exchange := range conf.Exchanges {
		client, err := internal.NewClient(exchange)
		if err != nil {
			return err
		}

		bot, err := internal.NewTradingBot(logger, exchange, client, orders, snapshots)
		if err != nil {
			return err
		}

		g.Go(func() error {
			return bot.Run(ctx, logger)
		})
	}

	status := web.NewServer(logger, conf.StatusAddr, orders, snapshots)
	g.Go(func() error {
		return status.Start(ctx)
	})

	logger.Info("spotchain started",
		zap.Int("exchanges", len(conf.Exchanges)),
		zap.String("ledger_backend", conf.LedgerBackend),
		zap.String("status_addr", conf.StatusAddr))

	return g.Wait()
}
