package monitoring

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision pipeline metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Total number of AI decisions processed",
		},
		[]string{"symbol", "action"},
	)

	decisionsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_decisions_discarded_total",
			Help: "Decision responses discarded by supersession or validation",
		},
		[]string{"symbol", "reason"},
	)

	decisionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trader_decision_latency_seconds",
			Help:    "Round-trip latency of AI decision requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"symbol"},
	)

	// Execution metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders submitted to the venue",
		},
		[]string{"symbol", "offset"},
	)

	fillsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_fills_applied_total",
			Help: "Fill deltas applied to the position ledger",
		},
		[]string{"symbol"},
	)

	fillAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_fill_anomalies_total",
			Help: "Fill callbacks ignored as duplicate, stale or invalid",
		},
		[]string{"symbol"},
	)

	// Risk metrics
	riskEnforcements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_risk_enforcements_total",
			Help: "Forced actions emitted by the risk controller",
		},
		[]string{"symbol", "kind"},
	)

	// State gauges
	positionLots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_position_lots",
			Help: "Signed position size in lots",
		},
		[]string{"symbol"},
	)

	lastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_last_price",
			Help: "Last traded or mid price",
		},
		[]string{"symbol"},
	)

	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_account_equity",
			Help: "Account equity from the last snapshot",
		},
	)

	dayRealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_day_realized_pnl",
			Help: "Realized PnL accumulated since day-roll",
		},
		[]string{"symbol"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		decisionsTotal,
		decisionsDiscarded,
		decisionLatency,
		ordersTotal,
		fillsApplied,
		fillAnomalies,
		riskEnforcements,
		positionLots,
		lastPrice,
		accountEquity,
		dayRealizedPnL,
		errorsTotal,
	)
}

// RecordDecision counts a processed decision by action.
func RecordDecision(symbol, action string) {
	decisionsTotal.WithLabelValues(symbol, action).Inc()
}

// RecordDecisionDiscarded counts a discarded decision response.
func RecordDecisionDiscarded(symbol, reason string) {
	decisionsDiscarded.WithLabelValues(symbol, reason).Inc()
}

// RecordDecisionLatency observes an AI round trip.
func RecordDecisionLatency(symbol string, seconds float64) {
	decisionLatency.WithLabelValues(symbol).Observe(seconds)
}

// RecordOrder counts an order submission.
func RecordOrder(symbol, offset string) {
	ordersTotal.WithLabelValues(symbol, offset).Inc()
}

// RecordFillApplied counts an applied fill delta.
func RecordFillApplied(symbol string) {
	fillsApplied.WithLabelValues(symbol).Inc()
}

// RecordFillAnomaly counts an ignored fill callback.
func RecordFillAnomaly(symbol string) {
	fillAnomalies.WithLabelValues(symbol).Inc()
}

// RecordRiskEnforcement counts a forced risk action.
func RecordRiskEnforcement(symbol, kind string) {
	riskEnforcements.WithLabelValues(symbol, kind).Inc()
}

// UpdatePosition sets the position gauge.
func UpdatePosition(symbol string, lots float64) {
	positionLots.WithLabelValues(symbol).Set(lots)
}

// UpdatePrice sets the last price gauge.
func UpdatePrice(symbol string, price float64) {
	lastPrice.WithLabelValues(symbol).Set(price)
}

// UpdateEquity sets the equity gauge.
func UpdateEquity(equity float64) {
	accountEquity.Set(equity)
}

// UpdateDayRealizedPnL sets the day PnL gauge.
func UpdateDayRealizedPnL(symbol string, pnl float64) {
	dayRealizedPnL.WithLabelValues(symbol).Set(pnl)
}

// RecordError counts an error by type.
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}

// StartMetricsServer serves /metrics and /health on the given port.
func StartMetricsServer(port int, health *HealthChecker) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if health != nil {
		mux.Handle("/health", health)
	}
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
