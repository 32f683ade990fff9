package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_requests_total",
			Help: "Total chat requests by terminal status and error kind",
		},
		[]string{"status", "error_kind"},
	)
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datachat_stage_duration_milliseconds",
			Help:    "Pipeline stage duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
		},
		[]string{"stage"},
	)
	BlockedInputs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datachat_blocked_inputs_total",
			Help: "Inputs rejected by the threat detector",
		},
	)
	ThrottledRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datachat_throttled_requests_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
	GuardRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_guard_rejections_total",
			Help: "Candidate queries rejected by the SQL guard",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(BlockedInputs)
	prometheus.MustRegister(ThrottledRequests)
	prometheus.MustRegister(GuardRejections)
}

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
