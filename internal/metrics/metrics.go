// Package metrics exposes Prometheus metrics updated by the trading cycle:
//
//	spotchain_orders_total{exchange,side,type,source}  orders placed
//	spotchain_cancels_total{exchange,side}             stale orders canceled
//	spotchain_liquidations_total{exchange}             defensive market sells
//	spotchain_pair_failures_total{exchange,step}       pair cycles abandoned
//	spotchain_ledger_gaps_total{exchange}              live orders without a ledger row
//	spotchain_spread_percent{exchange,pair}            last evaluated 24h spread
//	spotchain_spread_skips_total{exchange,pair}        pairs skipped by the spread gate
//	spotchain_buy_halted{exchange,pair}                1 while buys are halted
//	spotchain_cycle_duration_seconds{exchange}         cycle latency
//
// Registered in init() and served at /metrics by the status server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotchain_orders_total",
			Help: "Orders placed",
		},
		[]string{"exchange", "side", "type", "source"},
	)

	Cancels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotchain_cancels_total",
			Help: "Stale orders canceled",
		},
		[]string{"exchange", "side"},
	)

	Liquidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotchain_liquidations_total",
			Help: "Defensive market sells after a stale sell was canceled",
		},
		[]string{"exchange"},
	)

	PairFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotchain_pair_failures_total",
			Help: "Pair cycles abandoned, split by the failing step",
		},
		[]string{"exchange", "step"},
	)

	// placed on the exchange but missing from the ledger, needs manual reconciliation
	LedgerGaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotchain_ledger_gaps_total",
			Help: "Orders live on the exchange without a ledger record",
		},
		[]string{"exchange"},
	)

	Spread = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spotchain_spread_percent",
			Help: "Last evaluated 24h spread percentage",
		},
		[]string{"exchange", "pair"},
	)

	SpreadSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotchain_spread_skips_total",
			Help: "Pair cycles skipped by the spread gate",
		},
		[]string{"exchange", "pair"},
	)

	BuyHalted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spotchain_buy_halted",
			Help: "1 while buys on the pair are halted after a defensive liquidation",
		},
		[]string{"exchange", "pair"},
	)

	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spotchain_cycle_duration_seconds",
			Help:    "Duration of one exchange cycle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"exchange"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersPlaced,
		Cancels,
		Liquidations,
		PairFailures,
		LedgerGaps,
		Spread,
		SpreadSkips,
		BuyHalted,
		CycleDuration,
	)
}
