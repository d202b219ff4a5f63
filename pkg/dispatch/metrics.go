package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_batches_total",
		Help: "Total number of dispatched batches",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_batch_duration_seconds",
		Help:    "Wall-clock duration of a dispatched batch",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_responses_total",
		Help: "Terminal responses by classification (successful, failed)",
	}, []string{"class"})
)
