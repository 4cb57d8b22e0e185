package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_bot_sessions_total",
			Help: "Trading sessions finalized, by outcome",
		},
		[]string{"symbol", "outcome"},
	)

	breakoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_bot_breakouts_total",
			Help: "Confirmed breakouts, by direction",
		},
		[]string{"symbol", "direction"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_bot_orders_total",
			Help: "Orders submitted to the broker, by result",
		},
		[]string{"symbol", "result"},
	)

	droppedTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_bot_dropped_ticks_total",
			Help: "Ticks dropped for data quality reasons",
		},
		[]string{"symbol"},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orb_bot_current_price",
			Help: "Last observed mid price",
		},
		[]string{"symbol"},
	)

	rangeWidth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orb_bot_range_width",
			Help: "Width of the frozen opening range",
		},
		[]string{"symbol"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_bot_errors_total",
			Help: "Errors surfaced by the engine, by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(sessionsTotal)
	prometheus.MustRegister(breakoutsTotal)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(droppedTicksTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(rangeWidth)
	prometheus.MustRegister(errorsTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSession records a finalized session outcome.
func RecordSession(symbol, outcome string) {
	sessionsTotal.WithLabelValues(symbol, outcome).Inc()
}

// RecordBreakout records a confirmed breakout.
func RecordBreakout(symbol, direction string) {
	breakoutsTotal.WithLabelValues(symbol, direction).Inc()
}

// RecordOrder records a broker submission result (accepted / rejected).
func RecordOrder(symbol, result string) {
	ordersTotal.WithLabelValues(symbol, result).Inc()
}

// RecordDroppedTick counts a tick dropped for data quality reasons.
func RecordDroppedTick(symbol string) {
	droppedTicksTotal.WithLabelValues(symbol).Inc()
}

// UpdatePrice updates the last observed mid price.
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// UpdateRangeWidth publishes the frozen range width.
func UpdateRangeWidth(symbol string, width float64) {
	rangeWidth.WithLabelValues(symbol).Set(width)
}

// RecordError counts an engine error by category.
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
