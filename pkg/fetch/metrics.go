package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the attempt loop.
var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_attempts_total",
		Help: "Total GET attempts by outcome (reply, transport_error)",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_retries_total",
		Help: "Total number of retries after a transport failure",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_retry_backoff_seconds",
		Help:    "Backoff duration before a retry",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_retry_exhausted_total",
		Help: "Total number of tasks that spent every attempt on transport failures",
	})

	terminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_terminal_responses_total",
		Help: "Terminal responses by kind (reply, decode_failure, exhausted, cancelled, invalid)",
	}, []string{"kind"})
)
