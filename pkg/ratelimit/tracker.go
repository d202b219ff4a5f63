package ratelimit

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPrefix is the Redis key prefix for per-host state.
const DefaultPrefix = "fetch:ratelimit:"

// DefaultStateTTL bounds how long state without a reset time is kept.
const DefaultStateTTL = time.Hour

// ErrNoState is returned when nothing was recorded for a host.
var ErrNoState = errors.New("no rate limit state")

// Prometheus metrics for observed rate limits.
var (
	remainingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fetch_ratelimit_remaining",
		Help: "Requests remaining in the current window as advertised by the host",
	}, []string{"host"})

	observationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_ratelimit_observations_total",
		Help: "Rate limit header observations by level (healthy, warning, critical)",
	}, []string{"level"})
)

// Tracker records advertised rate limits per host in Redis.
type Tracker struct {
	redis  redis.Cmdable
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(t *Tracker) { t.prefix = prefix }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker on top of a Redis client.
func NewTracker(client redis.Cmdable, opts ...Option) *Tracker {
	t := &Tracker{
		redis:  client,
		prefix: DefaultPrefix,
		logger: log.With().Str("component", "ratelimit").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records the rate limit headers of a reply from rawURL. Replies
// without such headers are ignored.
func (t *Tracker) Observe(ctx context.Context, rawURL string, header http.Header) error {
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}

	now := t.now()
	state, ok, err := ParseHeaders(host, header, now)
	if err != nil {
		return errors.Wrapf(err, "parse rate limit headers from %s", host)
	}
	if !ok {
		return nil
	}

	ttl := DefaultStateTTL
	if until := state.TimeUntilReset(now); until > 0 {
		ttl = until + time.Minute
	}

	key := t.prefix + host
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"remaining", state.Remaining,
		"limit", state.Limit,
		"reset_at", resetUnix(state.ResetAt),
		"last_update", state.LastUpdate.UnixNano(),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "store rate limit state in redis")
	}

	level := state.Level()
	remainingGauge.WithLabelValues(host).Set(float64(state.Remaining))
	observationsTotal.WithLabelValues(string(level)).Inc()

	var event *zerolog.Event
	switch level {
	case LevelCritical:
		event = t.logger.Error()
	case LevelWarning:
		event = t.logger.Warn()
	default:
		event = t.logger.Debug()
	}
	event.
		Str("host", host).
		Int("remaining", state.Remaining).
		Int("limit", state.Limit).
		Dur("reset_in", state.TimeUntilReset(now)).
		Msg("Rate limit state updated")

	return nil
}

// State returns the last state recorded for host.
func (t *Tracker) State(ctx context.Context, host string) (*State, error) {
	fields, err := t.redis.HGetAll(ctx, t.prefix+strings.ToLower(host)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "get rate limit state")
	}
	if len(fields) == 0 {
		return nil, ErrNoState
	}

	remaining, err := strconv.Atoi(fields["remaining"])
	if err != nil {
		return nil, errors.Wrap(err, "parse remaining")
	}
	limit, _ := strconv.Atoi(fields["limit"])
	resetAt, _ := strconv.ParseInt(fields["reset_at"], 10, 64)
	lastUpdate, _ := strconv.ParseInt(fields["last_update"], 10, 64)

	state := &State{
		Host:       strings.ToLower(host),
		Limit:      limit,
		Remaining:  remaining,
		LastUpdate: time.Unix(0, lastUpdate),
	}
	if resetAt > 0 {
		state.ResetAt = time.Unix(resetAt, 0)
	}
	return state, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func resetUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
