package internal

import (
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/spotchain/config"
	"github.com/vadiminshakov/spotchain/internal/clients"
	"github.com/vadiminshakov/spotchain/internal/services/gateway"
	"github.com/vadiminshakov/spotchain/internal/storage/simstate"
)

// NewClient builds the SDK client for an exchange config.
func NewClient(conf config.ExchangeConfig) (any, error) {
	switch conf.Platform {
	case config.PlatformBinance:
		return clients.NewBinanceClient(conf.APIKey, conf.APISecret, conf.Testnet), nil
	case config.PlatformBybit:
		return clients.NewBybitClient(conf.APIKey, conf.APISecret, conf.Testnet), nil
	case config.PlatformPaper:
		return clients.NewPaperClient(), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", conf.Platform)
	}
}

// newGateway creates the market gateway for the client type.
// This is the single point of truth for dispatching to platform-specific implementations.
func newGateway(conf config.ExchangeConfig, client any, logger *zap.Logger) (marketGateway, error) {
	switch c := client.(type) {
	case *binance.Client:
		return gateway.NewBinanceGateway(c), nil
	case *bybit.Client:
		return gateway.NewBybitGateway(c, conf.Account), nil
	case *clients.PaperClient:
		scope := conf.Platform
		if conf.Account != "" {
			scope += "_" + string(conf.Account)
		}
		store, err := simstate.NewStore(conf.PaperStateDir, scope)
		if err != nil {
			return nil, errors.Wrap(err, "init paper state store")
		}
		return gateway.NewPaperGateway(logger, gateway.NewBinanceGateway(c.MarketClient()), store, conf.PaperBalances, conf.PaperFee)
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}
