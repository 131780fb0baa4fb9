// Package metrics holds the Prometheus collectors for the HTTP layer and
// for the order pipeline.
package metrics

import (
	"net/http"

	"solestore-backend/internal/apperr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	HTTPInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	OrdersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders successfully placed.",
		},
	)

	OrdersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "cancelled_total",
			Help:      "Orders cancelled, by who cancelled them.",
		},
		[]string{"actor"},
	)

	ReservationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "inventory",
			Name:      "checkout_failures_total",
			Help:      "Checkouts rejected, by error kind.",
		},
		[]string{"kind"},
	)

	RatingRecomputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "reviews",
			Name:      "rating_recomputes_total",
			Help:      "Product rating recomputations, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		HTTPInFlight,
		HTTPRequests,
		HTTPDuration,
		OrdersCreated,
		OrdersCancelled,
		ReservationFailures,
		RatingRecomputes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveReservationFailure counts a failed checkout by its error kind.
func ObserveReservationFailure(err error) {
	if err == nil {
		return
	}
	ReservationFailures.WithLabelValues(apperr.KindOf(err).String()).Inc()
}

func ObserveRecompute(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RatingRecomputes.WithLabelValues(outcome).Inc()
}
