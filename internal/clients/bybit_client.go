package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient creates a Bybit V5 client. Empty credentials leave it unauthenticated.
func NewBybitClient(apiKey, apiSecret string, testnet bool) *bybit.Client {
	client := bybit.NewClient()
	if testnet {
		client = bybit.NewTestClient().Client
	}
	if apiKey != "" {
		client = client.WithAuth(apiKey, apiSecret)
	}

	return client
}
