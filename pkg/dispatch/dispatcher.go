package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/fetch-dispatcher/pkg/fetch"
	"github.com/Sternrassler/fetch-dispatcher/pkg/limiter"
	"github.com/Sternrassler/fetch-dispatcher/pkg/result"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid dispatcher config")

	// ErrInterrupted is returned when the context ends before every task
	// completed normally. The batch is still complete and ordered.
	ErrInterrupted = errors.New("dispatch interrupted")
)

// Runner executes one endpoint to a terminal response. *fetch.Task
// implements it.
type Runner interface {
	Run(ctx context.Context, baseURL, endpoint string, maxRetries int) result.Response
}

// Config holds dispatcher configuration.
type Config struct {
	// BaseURL is prefixed to every endpoint.
	BaseURL string

	// MaxConcurrent is the limiter capacity.
	MaxConcurrent int

	// MaxRetries is the attempt budget per endpoint used by Dispatch.
	MaxRetries int
}

// DefaultConfig returns the default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		MaxConcurrent: 10,
		MaxRetries:    3,
	}
}

// Dispatcher runs batches of endpoints. It keeps the most recent batch,
// which each DispatchAll call replaces.
type Dispatcher struct {
	runner  Runner
	limiter *limiter.Limiter
	config  Config
	logger  zerolog.Logger
	newID   func() string
	now     func() time.Time

	mu     sync.RWMutex
	latest result.Batch
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithIDGenerator replaces the batch ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// New creates a dispatcher.
func New(cfg Config, runner Runner, opts ...Option) (*Dispatcher, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "base URL is required")
	}
	if runner == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "runner is required")
	}
	if cfg.MaxRetries < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "max retries must be >= 1 (got %d)", cfg.MaxRetries)
	}

	lim, err := limiter.New(cfg.MaxConcurrent)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "max concurrent"), ErrInvalidConfig)
	}

	d := &Dispatcher{
		runner:  runner,
		limiter: lim,
		config:  cfg,
		logger:  log.With().Str("component", "dispatcher").Logger(),
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Limiter returns the admission gate shared by all batches of d.
func (d *Dispatcher) Limiter() *limiter.Limiter {
	return d.limiter
}

// Dispatch runs DispatchAll with Config.MaxRetries.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoints []string) (result.Batch, error) {
	return d.DispatchAll(ctx, endpoints, d.config.MaxRetries)
}

// DispatchAll fetches every endpoint concurrently, at most MaxConcurrent at
// a time, and returns one response per endpoint in input order.
//
// Endpoint failures are recorded in the batch, never returned. The error is
// fetch.ErrInvalidRetries for maxRetries < 1, or ErrInterrupted when ctx ended
// during the batch; endpoints that never got a slot then carry a status 0
// response.
func (d *Dispatcher) DispatchAll(ctx context.Context, endpoints []string, maxRetries int) (result.Batch, error) {
	if maxRetries < 1 {
		return result.Batch{}, errors.Wrapf(fetch.ErrInvalidRetries, "got %d", maxRetries)
	}

	start := d.now()
	batch := result.Batch{
		ID:        d.newID(),
		Responses: make([]result.Response, len(endpoints)),
		StartedAt: start,
	}

	d.logger.Info().
		Str("batch_id", batch.ID).
		Str("base_url", d.config.BaseURL).
		Int("endpoints", len(endpoints)).
		Int("max_concurrent", d.limiter.Capacity()).
		Int("max_retries", maxRetries).
		Msg("Starting batch")

	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			batch.Responses[i] = d.runOne(ctx, endpoint, maxRetries)
		}(i, endpoint)
	}
	wg.Wait()

	batch.Duration = time.Since(start)
	succeeded, failed := batch.Summary()

	batchesTotal.Inc()
	batchDuration.Observe(batch.Duration.Seconds())
	responsesTotal.WithLabelValues("successful").Add(float64(succeeded))
	responsesTotal.WithLabelValues("failed").Add(float64(failed))

	d.mu.Lock()
	d.latest = batch
	d.mu.Unlock()

	d.logger.Info().
		Str("batch_id", batch.ID).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("duration", batch.Duration).
		Msg("Batch complete")

	if err := ctx.Err(); err != nil {
		return batch, errors.Mark(errors.Wrap(err, "dispatch interrupted"), ErrInterrupted)
	}
	return batch, nil
}

// runOne holds a limiter slot around a single task.
func (d *Dispatcher) runOne(ctx context.Context, endpoint string, maxRetries int) result.Response {
	if err := d.limiter.Acquire(ctx); err != nil {
		d.logger.Debug().
			Str("endpoint", endpoint).
			Msg("Not admitted (context done)")
		return result.Failure(fetch.JoinURL(d.config.BaseURL, endpoint), 0,
			errors.Wrap(err, "waiting for a concurrency slot"), d.now())
	}
	defer d.limiter.Release()

	return d.runner.Run(ctx, d.config.BaseURL, endpoint, maxRetries)
}

// Results returns the most recent batch.
func (d *Dispatcher) Results() result.Batch {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

// Successful returns the successful responses of the most recent batch.
func (d *Dispatcher) Successful() []result.Response {
	return d.Results().Successful()
}

// Failed returns the failed responses of the most recent batch.
func (d *Dispatcher) Failed() []result.Response {
	return d.Results().Failed()
}

// DispatchAll is the one-shot form: it builds a dispatcher for baseURL with
// maxConcurrent slots and runs a single batch.
func DispatchAll(ctx context.Context, runner Runner, baseURL string, endpoints []string, maxConcurrent, maxRetries int) (result.Batch, error) {
	cfg := Config{
		BaseURL:       baseURL,
		MaxConcurrent: maxConcurrent,
		MaxRetries:    maxRetries,
	}
	d, err := New(cfg, runner)
	if err != nil {
		return result.Batch{}, err
	}
	return d.DispatchAll(ctx, endpoints, maxRetries)
}
