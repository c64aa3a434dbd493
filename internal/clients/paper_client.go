package clients

import (
	"github.com/adshao/go-binance/v2"
)

// PaperClient marks the paper platform. Quotes come from the public Binance API.
type PaperClient struct {
	market *binance.Client
}

// NewPaperClient creates a paper client backed by public Binance market data.
func NewPaperClient() *PaperClient {
	return &PaperClient{market: NewPublicBinanceClient()}
}

// MarketClient returns the underlying Binance client.
func (c *PaperClient) MarketClient() *binance.Client {
	return c.market
}
