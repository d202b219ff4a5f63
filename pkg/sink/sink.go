// Package sink publishes finished batches to external systems: a Kafka
// topic (one message per response) or a Redis store keyed by batch ID.
package sink

import (
	"context"

	"github.com/Sternrassler/fetch-dispatcher/pkg/result"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fetch_sink_publish_total",
	Help: "Batch publications by sink and outcome (ok, error)",
}, []string{"sink", "outcome"})

// Publisher receives finished batches.
type Publisher interface {
	Publish(ctx context.Context, batch result.Batch) error
}

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, batch result.Batch) error {
	var errs error
	for _, p := range m {
		if err := p.Publish(ctx, batch); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func record(sink string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	publishTotal.WithLabelValues(sink, outcome).Inc()
	return err
}
