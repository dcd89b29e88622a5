package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeliveryDenied counts 404/401 outcomes on the delivery gateway by internal reason.
	DeliveryDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videocat_delivery_denied_total",
		Help: "Total number of denied delivery requests, by reason.",
	}, []string{"reason"})

	// DeliveryServed counts successfully served artifacts.
	DeliveryServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videocat_delivery_served_total",
		Help: "Total number of served HLS artifacts, by kind (manifest, segment).",
	}, []string{"kind"})

	// HTTPRequestDuration tracks API latency by chi route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "videocat_http_request_duration_seconds",
		Help:    "HTTP request latency, by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "videocat_http_requests_in_flight",
		Help: "Current number of HTTP requests being served.",
	})
)

// RecordDeliveryDenied increments the deny counter for reason.
func RecordDeliveryDenied(reason string) {
	DeliveryDenied.WithLabelValues(reason).Inc()
}

// RecordDeliveryServed increments the served counter for kind.
func RecordDeliveryServed(kind string) {
	DeliveryServed.WithLabelValues(kind).Inc()
}
