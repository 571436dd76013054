// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Settlement metrics
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	SettlementFailures *prometheus.CounterVec
	NativeRefundsTotal prometheus.Counter

	// Listing metrics
	ListingsCreated  prometheus.Counter
	ListingsUpdated  prometheus.Counter
	ListingsCanceled prometheus.Counter
	ListingsFilled   prometheus.Counter

	// Registry metrics
	TokensAdded   prometheus.Counter
	TokensRemoved prometheus.Counter

	// Oracle metrics
	OracleRoundsReceived *prometheus.CounterVec
	OracleReconnects     prometheus.Counter

	// Sale recording metrics
	SalesRecorded       prometheus.Counter
	SaleRecordingErrors prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Websocket metrics
	WSSubscribers     prometheus.Gauge
	WSEventsDelivered prometheus.Counter

	// Health metrics
	LastSuccessfulSale prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nft_market_lab"
	}

	return &Metrics{
		// Settlement metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Total number of marketplace operations by type and status",
		}, []string{"operation", "status"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "operation_duration_seconds",
			Help:      "Marketplace operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SettlementFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "failures_total",
			Help:      "Total number of settlement failures by reason",
		}, []string{"reason"}),
		NativeRefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "native_refunds_total",
			Help:      "Total number of native overpayment refunds issued",
		}),

		// Listing metrics
		ListingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "created_total",
			Help:      "Total number of listings created",
		}),
		ListingsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "updated_total",
			Help:      "Total number of listings updated",
		}),
		ListingsCanceled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "canceled_total",
			Help:      "Total number of listings canceled",
		}),
		ListingsFilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "filled_total",
			Help:      "Total number of listings filled by a purchase",
		}),

		// Registry metrics
		TokensAdded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "tokens_added_total",
			Help:      "Total number of payment tokens added to the registry",
		}),
		TokensRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "tokens_removed_total",
			Help:      "Total number of payment tokens removed from the registry",
		}),

		// Oracle metrics
		OracleRoundsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "rounds_received_total",
			Help:      "Total number of price rounds received by feed",
		}, []string{"feed"}),
		OracleReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "reconnects_total",
			Help:      "Total number of oracle websocket reconnects",
		}),

		// Sale recording metrics
		SalesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "recorded_total",
			Help:      "Total number of sale records written to history",
		}),
		SaleRecordingErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "recording_errors_total",
			Help:      "Total number of sale recording errors",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Websocket metrics
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "subscribers",
			Help:      "Current number of connected event stream subscribers",
		}),
		WSEventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "events_delivered_total",
			Help:      "Total number of events delivered to stream subscribers",
		}),

		// Health metrics
		LastSuccessfulSale: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sale_timestamp",
			Help:      "Unix timestamp of the last settled purchase",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records an operation outcome with its duration.
func RecordOperation(operation, status string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, status).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordSettlementFailure records a failed settlement by reason.
func RecordSettlementFailure(reason string) {
	DefaultMetrics.SettlementFailures.WithLabelValues(reason).Inc()
}

// RecordListingCreated increments the listings created counter.
func RecordListingCreated() {
	DefaultMetrics.ListingsCreated.Inc()
}

// RecordListingFilled increments the listings filled counter and updates
// the last successful sale timestamp.
func RecordListingFilled(unixSeconds float64) {
	DefaultMetrics.ListingsFilled.Inc()
	DefaultMetrics.LastSuccessfulSale.Set(unixSeconds)
}

// RecordOracleRound records a price round received for a feed.
func RecordOracleRound(feed string) {
	DefaultMetrics.OracleRoundsReceived.WithLabelValues(feed).Inc()
}

// RecordSaleStored records a sale history write.
func RecordSaleStored(err error) {
	if err != nil {
		DefaultMetrics.SaleRecordingErrors.Inc()
		return
	}
	DefaultMetrics.SalesRecorded.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
