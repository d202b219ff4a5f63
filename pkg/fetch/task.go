package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/fetch-dispatcher/pkg/result"
	"github.com/Sternrassler/fetch-dispatcher/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Getter performs a single GET. A returned error is a transport failure;
// any reply, whatever its status, is not.
type Getter interface {
	Get(ctx context.Context, url string) (*transport.Reply, error)
}

// Config holds task configuration.
type Config struct {
	Backoff Backoff
}

// DefaultConfig returns the default task configuration.
func DefaultConfig() Config {
	return Config{Backoff: DefaultBackoff()}
}

// Task runs the attempt loop for one endpoint at a time. It holds no
// per-run state and is safe for concurrent use.
type Task struct {
	getter  Getter
	backoff Backoff
	sleep   Sleeper
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Task.
type Option func(*Task)

// WithSleeper replaces SleepContext (tests record delays through it).
func WithSleeper(s Sleeper) Option {
	return func(t *Task) { t.sleep = s }
}

// WithClock replaces time.Now for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Task) { t.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Task) { t.logger = logger }
}

// NewTask creates a task that issues requests through getter.
func NewTask(getter Getter, cfg Config, opts ...Option) *Task {
	t := &Task{
		getter:  getter,
		backoff: cfg.Backoff,
		sleep:   SleepContext,
		now:     time.Now,
		logger:  log.With().Str("component", "fetch").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// JoinURL joins baseURL and endpoint with exactly one slash.
func JoinURL(baseURL, endpoint string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// Run fetches endpoint relative to baseURL with at most maxRetries attempts
// and returns its terminal Response.
func (t *Task) Run(ctx context.Context, baseURL, endpoint string, maxRetries int) result.Response {
	url := JoinURL(baseURL, endpoint)

	if maxRetries < 1 {
		terminalTotal.WithLabelValues("invalid").Inc()
		return result.Failure(url, 0, fmt.Errorf("%w (got %d)", ErrInvalidRetries, maxRetries), t.now())
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.backoff.Delay(attempt)
			retriesTotal.Inc()
			retryBackoffSeconds.Observe(delay.Seconds())

			t.logger.Debug().
				Str("url", url).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying request after backoff")

			if err := t.sleep(ctx, delay); err != nil {
				terminalTotal.WithLabelValues("cancelled").Inc()
				t.logger.Warn().
					Str("url", url).
					Int("attempt", attempt).
					Msg("Context cancelled during retry backoff")
				return result.Failure(url, 0,
					fmt.Errorf("%w after %d attempts: %v", ErrContextCancelled, attempt, lastErr), t.now())
			}
		}

		reply, err := t.getter.Get(ctx, url)
		if err == nil {
			attemptsTotal.WithLabelValues("reply").Inc()
			if attempt > 0 {
				t.logger.Info().
					Str("url", url).
					Int("attempt", attempt+1).
					Int("status", reply.StatusCode).
					Msg("Request succeeded after retry")
			}
			return t.complete(url, reply)
		}

		attemptsTotal.WithLabelValues("transport_error").Inc()
		lastErr = err
		t.logger.Debug().
			Err(err).
			Str("url", url).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries).
			Msg("Transport failure")
	}

	retryExhaustedTotal.Inc()
	terminalTotal.WithLabelValues("exhausted").Inc()
	t.logger.Warn().
		Err(lastErr).
		Str("url", url).
		Int("max_attempts", maxRetries).
		Msg("Retry attempts exhausted")

	return result.Failure(url, 0, lastErr, t.now())
}

// complete turns a reply into a terminal Response. A body that is empty, not
// valid JSON or the JSON null is a decode failure: the status is kept, data
// is dropped.
func (t *Task) complete(url string, reply *transport.Reply) result.Response {
	if len(reply.Body) == 0 {
		terminalTotal.WithLabelValues("decode_failure").Inc()
		return result.Failure(url, reply.StatusCode, fmt.Errorf("%w: empty body", ErrDecode), t.now())
	}
	if !json.Valid(reply.Body) {
		terminalTotal.WithLabelValues("decode_failure").Inc()
		t.logger.Debug().
			Str("url", url).
			Int("status", reply.StatusCode).
			Msg("Response body is not valid JSON")
		return result.Failure(url, reply.StatusCode, fmt.Errorf("%w: invalid JSON", ErrDecode), t.now())
	}
	if bytes.Equal(bytes.TrimSpace(reply.Body), []byte("null")) {
		terminalTotal.WithLabelValues("decode_failure").Inc()
		return result.Failure(url, reply.StatusCode, fmt.Errorf("%w: null body", ErrDecode), t.now())
	}

	terminalTotal.WithLabelValues("reply").Inc()
	data := make(json.RawMessage, len(reply.Body))
	copy(data, reply.Body)
	return result.Success(url, reply.StatusCode, data, t.now())
}
