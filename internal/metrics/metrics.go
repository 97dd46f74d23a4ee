// Package metrics records one observation per request issued by the harness
// and exposes them in prometheus format.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Sink receives one measurement per completed request.
type Sink interface {
	ObserveRequest(endpoint string, status int, latency time.Duration, ts time.Time)
}

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitstress_requests_total",
			Help: "Total requests issued, by endpoint and response status",
		},
		[]string{"endpoint", "status"},
	)

	requestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fitstress_request_latency_seconds",
			Help:    "Request round-trip latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"endpoint"},
	)

	lastRequestGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fitstress_last_request_timestamp_seconds",
			Help: "Unix timestamp of the most recently completed request",
		},
	)
)

// PrometheusSink records observations into the process-wide prometheus
// registry.
type PrometheusSink struct{}

// NewPrometheusSink creates a sink backed by the default registry.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

// ObserveRequest implements Sink.
func (s *PrometheusSink) ObserveRequest(endpoint string, status int, latency time.Duration, ts time.Time) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	requestLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
	lastRequestGauge.Set(float64(ts.Unix()))
}

// Serve exposes /metrics on the given port until the process exits. Returns
// immediately; serve errors are logged, not fatal, because losing the
// exposition endpoint must not kill a run in flight.
func Serve(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// NopSink discards all observations.
type NopSink struct{}

// ObserveRequest implements Sink.
func (NopSink) ObserveRequest(string, int, time.Duration, time.Time) {}
