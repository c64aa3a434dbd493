package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"github.com/vadiminshakov/spotchain/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/spotchain/internal/storage/ledger"
	"go.uber.org/zap"
)

var (
	btc = domain.Pair{From: "BTC", To: "USDT"}
	eth = domain.Pair{From: "ETH", To: "USDT"}
)

func seedLedger(t *testing.T) ledger.Store {
	t.Helper()
	store, err := ledger.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	ext := func(s string) *string { return &s }
	now := time.Now().UTC()

	buyID, err := store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), Side: domain.SideBuy, Pair: btc,
		Exchange: "binance", Reason: "market", ExternalOrderID: ext("1"), Timestamp: now,
	})
	require.NoError(t, err)
	_, err = store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(101), Side: domain.SideSell, Pair: btc,
		Exchange: "binance", Reason: "linked", BasedOnOrderID: &buyID, ExternalOrderID: ext("2"), Timestamp: now,
	})
	require.NoError(t, err)
	_, err = store.AppendOrder(ctx, domain.LedgerOrder{
		Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(10), Side: domain.SideBuy, Pair: eth,
		Exchange: "bybit", Reason: "market", ExternalOrderID: ext("3"), Timestamp: now,
	})
	require.NoError(t, err)

	return store
}

func get(t *testing.T, h http.Handler, url string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestServer_Health(t *testing.T) {
	h := NewServer(zap.NewNop(), ":0", nil, nil).Handler()

	var body map[string]string
	require.Equal(t, http.StatusOK, get(t, h, "/healthz", &body))
	assert.Equal(t, "ok", body["status"])

	require.Equal(t, http.StatusOK, get(t, h, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, get(t, h, "/ledger", nil))
	require.Equal(t, http.StatusServiceUnavailable, get(t, h, "/balances", nil))
}

func TestServer_Ledger(t *testing.T) {
	h := NewServer(zap.NewNop(), ":0", seedLedger(t), nil).Handler()

	var all []domain.LedgerOrder
	require.Equal(t, http.StatusOK, get(t, h, "/ledger", &all))
	require.Len(t, all, 3)

	var page []domain.LedgerOrder
	require.Equal(t, http.StatusOK, get(t, h, "/ledger?after=1&limit=1", &page))
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].ID)

	var filtered []domain.LedgerOrder
	require.Equal(t, http.StatusOK, get(t, h, "/ledger?pair=btc_usdt&exchange=binance", &filtered))
	require.Len(t, filtered, 2)
	for _, o := range filtered {
		assert.Equal(t, btc, o.Pair)
	}

	var consumers []domain.LedgerOrder
	require.Equal(t, http.StatusOK, get(t, h, "/ledger/1/consumers", &consumers))
	require.Len(t, consumers, 1)
	assert.Equal(t, domain.SideSell, consumers[0].Side)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/ledger?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/ledger?pair=BTCUSDT", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/ledger?after=x", nil))
}

func TestServer_Balances(t *testing.T) {
	snapshots, err := balancesnapshots.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapshots.Close() })

	ts := time.Now().UTC()
	for _, s := range []domain.BalanceSnapshot{
		domain.NewBalanceSnapshot(ts, "binance", "spot", map[string]domain.Balance{"USDT": {Currency: "USDT", Total: decimal.NewFromInt(100), Available: decimal.NewFromInt(100)}}),
		domain.NewBalanceSnapshot(ts, "binance", "spot", map[string]domain.Balance{"USDT": {Currency: "USDT", Total: decimal.NewFromInt(90), Available: decimal.NewFromInt(80)}}),
		domain.NewBalanceSnapshot(ts, "paper", "paper", map[string]domain.Balance{"BTC": {Currency: "BTC", Total: decimal.NewFromInt(1), Available: decimal.NewFromInt(1)}}),
	} {
		require.NoError(t, snapshots.Save(s))
	}

	h := NewServer(zap.NewNop(), ":0", nil, snapshots).Handler()

	var latest map[string]domain.BalanceSnapshot
	require.Equal(t, http.StatusOK, get(t, h, "/balances", &latest))
	require.Len(t, latest, 2)
	require.Len(t, latest["binance"].Balances, 1)
	assert.Equal(t, "90", latest["binance"].Balances[0].Total)

	var one map[string]domain.BalanceSnapshot
	require.Equal(t, http.StatusOK, get(t, h, "/balances?exchange=paper", &one))
	require.Len(t, one, 1)
}

func TestServer_LedgerStream(t *testing.T) {
	srv := httptest.NewServer(NewServer(zap.NewNop(), ":0", seedLedger(t), nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/ledger/stream?exchange=bybit", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: order\n", event)

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(data, "data: "))

	var o domain.LedgerOrder
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &o))
	assert.Equal(t, "bybit", o.Exchange)
	assert.Equal(t, eth, o.Pair)
}
