// Package limiter provides the admission gate that bounds how many fetches
// may be in flight at once.
package limiter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

var (
	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetch_limiter_in_flight",
		Help: "Number of currently held limiter slots",
	})

	acquireWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_limiter_acquire_wait_seconds",
		Help:    "Time spent waiting for a limiter slot",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

// ErrInvalidCapacity is returned for a capacity below one.
var ErrInvalidCapacity = errors.New("limiter capacity must be >= 1")

// Limiter is a counting semaphore. Waiters are admitted in arrival order.
// It also tracks the current and peak number of holders.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	holders  atomic.Int64
	peak     atomic.Int64
}

// New creates a limiter with capacity slots.
func New(capacity int) (*Limiter, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}, nil
}

// Acquire blocks until a slot is free or ctx is done. On error no slot is held.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	acquireWaitSeconds.Observe(time.Since(start).Seconds())

	n := l.holders.Add(1)
	inFlightGauge.Inc()
	for {
		peak := l.peak.Load()
		if n <= peak || l.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return nil
}

// Release frees a slot. Releasing more than was acquired panics and leaves
// the counters unchanged.
func (l *Limiter) Release() {
	l.sem.Release(1)
	l.holders.Add(-1)
	inFlightGauge.Dec()
}

// Do runs fn while holding a slot. The slot is released even if fn panics.
func (l *Limiter) Do(ctx context.Context, fn func()) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	fn()
	return nil
}

// Capacity returns the number of slots.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	return int(l.holders.Load())
}

// Peak returns the highest number of slots held at once since creation or
// the last ResetPeak.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}

// ResetPeak sets the peak to the current number of holders.
func (l *Limiter) ResetPeak() {
	l.peak.Store(l.holders.Load())
}
