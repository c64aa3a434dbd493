// Package clients builds the raw exchange SDK clients wrapped by the gateways.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates an authenticated Binance spot client.
// testnet switches every Binance client in the process to the spot testnet.
func NewBinanceClient(apiKey, apiSecret string, testnet bool) *binance.Client {
	if testnet {
		binance.UseTestnet = true
	}

	return binance.NewClient(apiKey, apiSecret)
}

// NewPublicBinanceClient creates a client without API keys, usable for public
// market data only. Paper trading quotes come from it.
func NewPublicBinanceClient() *binance.Client {
	return binance.NewClient("", "")
}
