// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexbot_signals_total",
		Help: "Strategy signals emitted, by action.",
	}, []string{"action"})

	tradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexbot_trades_total",
		Help: "Swap transactions submitted, by type.",
	}, []string{"type"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexbot_errors_total",
		Help: "Operational errors, by context.",
	}, []string{"context"})

	totalProfitUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexbot_total_profit_usd",
		Help: "Cumulative realised profit in USD.",
	})

	pendingTxs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dexbot_pending_txs",
		Help: "Tracked transactions by lifecycle status.",
	}, []string{"status"})

	gasBumpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexbot_gas_bumps_total",
		Help: "Replace-by-fee rebroadcasts performed.",
	})

	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dexbot_api_latency_seconds",
		Help:    "HTTP handler latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})
)

func IncSignal(action string) { signalsTotal.WithLabelValues(action).Inc() }

func IncTrade(tradeType string) { tradesTotal.WithLabelValues(tradeType).Inc() }

func IncError(context string) { errorsTotal.WithLabelValues(context).Inc() }

func SetTotalProfitUSD(v float64) { totalProfitUSD.Set(v) }

func IncGasBump() { gasBumpsTotal.Inc() }

// SetPendingTxs records the tracked-transaction count for one status.
func SetPendingTxs(status string, n float64) { pendingTxs.WithLabelValues(status).Set(n) }

// ObserveAPILatency records one handler invocation.
func ObserveAPILatency(path, method string, seconds float64) {
	apiLatency.WithLabelValues(path, method).Observe(seconds)
}

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
