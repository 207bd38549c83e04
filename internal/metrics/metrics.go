// Package metrics holds the Prometheus collectors exported by gloomd.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gloomd_requests_total",
		Help: "Total number of socket requests by action and result code",
	}, []string{"action", "code"})

	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gloomd_request_duration_seconds",
		Help:    "Request handling latency in seconds by action",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4.0, 12),
	}, []string{"action"})

	Filters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gloomd_filters",
		Help: "Number of live filters",
	})

	ValuesAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gloomd_values_added_total",
		Help: "Total number of values added across all filters",
	})

	ValuesTested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gloomd_values_tested_total",
		Help: "Total number of membership tests by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(Requests)
	prometheus.MustRegister(RequestLatency)
	prometheus.MustRegister(Filters)
	prometheus.MustRegister(ValuesAdded)
	prometheus.MustRegister(ValuesTested)
}

// ObserveRequest records one handled request. code is "ok" on success.
func ObserveRequest(action, code string, elapsed time.Duration) {
	Requests.WithLabelValues(action, code).Inc()
	RequestLatency.WithLabelValues(action).Observe(elapsed.Seconds())
}

func SetFilters(n int) {
	Filters.Set(float64(n))
}

func AddValues(n int) {
	ValuesAdded.Add(float64(n))
}

// ObserveTests counts membership results.
func ObserveTests(present []bool) {
	var hits int
	for _, p := range present {
		if p {
			hits++
		}
	}
	if hits > 0 {
		ValuesTested.WithLabelValues("present").Add(float64(hits))
	}
	if misses := len(present) - hits; misses > 0 {
		ValuesTested.WithLabelValues("absent").Add(float64(misses))
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
