package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the alert pipeline.
type Metrics struct {
	CyclesTotal    prometheus.Counter
	CycleDuration  prometheus.Histogram
	SchedulerUp    prometheus.Gauge
	TenantsSkipped *prometheus.CounterVec // labels: reason={not_configured,locked,feed_error,ledger_error}

	EventsFetched  prometheus.Counter
	EventsSelected prometheus.Counter
	FeedErrors     prometheus.Counter

	Deliveries          *prometheus.CounterVec // labels: outcome={delivered,send_failed,unreachable}
	DirectNotifications *prometheus.CounterVec // labels: outcome={sent,failed}
	PublishErrors       prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SchedulerUp,
		m.TenantsSkipped,
		m.EventsFetched,
		m.EventsSelected,
		m.FeedErrors,
		m.Deliveries,
		m.DirectNotifications,
		m.PublishErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "cycles_total",
			Help:      "Total poll cycles started.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seismic_alert",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete pass over all enabled tenants.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		SchedulerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "seismic_alert",
			Name:      "scheduler_running",
			Help:      "1 when the poll scheduler is active, 0 when shut down.",
		}),
		TenantsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "tenants_skipped_total",
			Help:      "Tenants skipped during a cycle by reason.",
		}, []string{"reason"}),
		EventsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "events_fetched_total",
			Help:      "Total events read from tenant feeds.",
		}),
		EventsSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "events_selected_total",
			Help:      "Total events that passed threshold and ledger filtering.",
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "feed_errors_total",
			Help:      "Total failed feed fetches.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "deliveries_total",
			Help:      "Channel delivery attempts by outcome.",
		}, []string{"outcome"}),
		DirectNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "direct_notifications_total",
			Help:      "Direct subscriber notifications by outcome.",
		}, []string{"outcome"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "delivery_publish_errors_total",
			Help:      "Failed writes of delivery notices to Kafka.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic_alert",
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seismic_alert",
			Name:      "geocode_api_duration_seconds",
			Help:      "Reverse geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
