// Package transport performs single HTTP GET requests and reports either the
// reply or a classified transport failure. It applies a per-request timeout
// and, when configured, answers from or revalidates against a Redis-backed
// response cache.
package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/fetch-dispatcher/pkg/cache"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_transport_requests_total",
		Help: "Total GET requests by outcome (status class, cache or error class)",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_transport_request_duration_seconds",
		Help:    "GET request duration in seconds by source",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})
)

// Reply is a completed HTTP exchange.
type Reply struct {
	StatusCode int
	Body       []byte
	Header     http.Header

	// FromCache is set when the body came from the response cache, either
	// fresh or after a 304 revalidation.
	FromCache bool
}

// Config holds the transport configuration.
type Config struct {
	// Timeout bounds every individual request, including reading the body.
	Timeout time.Duration

	// UserAgent is sent on every request.
	UserAgent string

	// MaxIdleConnsPerHost sizes the keep-alive pool.
	MaxIdleConnsPerHost int
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		UserAgent:           "fetch-dispatcher/0.1.0",
		MaxIdleConnsPerHost: 10,
	}
}

// Observer is told about the headers of every reply received from the
// network. ratelimit.Tracker implements it.
type Observer interface {
	Observe(ctx context.Context, url string, header http.Header) error
}

// Client issues GET requests.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	observer   Observer
	config     Config
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache serves and revalidates replies through m.
func WithCache(m *cache.Manager) Option {
	return func(c *Client) { c.cache = m }
}

// WithObserver reports network reply headers to o. Observer errors are
// logged and never fail the request.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a transport client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.Newf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.UserAgent == "" {
		return nil, errors.New("user-agent is required")
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConnsPerHost > 0 {
		base.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}

	c := &Client{
		httpClient: &http.Client{Transport: base},
		config:     cfg,
		logger:     log.With().Str("component", "transport").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get performs one GET request to rawURL. Any HTTP status is a Reply; a
// failure before a status was obtained is returned as *Error.
func (c *Client) Get(ctx context.Context, rawURL string) (*Reply, error) {
	startTime := time.Now()
	source := "network"
	defer func() {
		requestDuration.WithLabelValues(source).Observe(time.Since(startTime).Seconds())
	}()

	key := cache.KeyFor(rawURL)
	cached := c.lookup(ctx, key)
	if cached != nil && !cached.IsExpired() {
		source = "cache"
		cache.CacheHits.WithLabelValues("fresh").Inc()
		requestsTotal.WithLabelValues("cache").Inc()
		c.logger.Debug().Str("url", rawURL).Msg("Served from cache")
		return replyFromEntry(cached), nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, c.fail(rawURL, ErrorClassProtocol, errors.Wrap(err, "create request"))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if cached.CanRevalidate() {
		cache.AddConditionalHeaders(req, cached)
		c.logger.Debug().
			Str("url", rawURL).
			Str("etag", cached.ETag).
			Msg("Making conditional request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(rawURL, classifyError(err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(rawURL, classifyError(err), errors.Wrap(err, "read response body"))
	}

	now := time.Now()

	if c.observer != nil {
		if err := c.observer.Observe(ctx, rawURL, resp.Header); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to record reply headers")
		}
	}

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		source = "cache"
		cache.CacheHits.WithLabelValues("revalidated").Inc()
		requestsTotal.WithLabelValues("not_modified").Inc()
		if err := c.cache.Refresh(ctx, key, cached, cache.Expiry(resp.Header, now)); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to refresh cache entry")
		}
		c.logger.Debug().Str("url", rawURL).Msg("304 Not Modified - using cache")
		return replyFromEntry(cached), nil
	}

	requestsTotal.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	if c.cache != nil && cache.Cacheable(resp.StatusCode, resp.Header) {
		entry := cache.NewEntry(resp.StatusCode, resp.Header, body, now)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache response")
		}
	}

	return &Reply{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}, nil
}

// lookup returns the cached entry for key, or nil. Cache errors are logged
// and treated as a miss.
func (c *Client) lookup(ctx context.Context, key cache.Key) *cache.Entry {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", key.URL).Msg("Cache get error")
		}
		return nil
	}
	return entry
}

func (c *Client) fail(rawURL string, class ErrorClass, err error) *Error {
	requestsTotal.WithLabelValues(string(class)).Inc()
	c.logger.Debug().
		Err(err).
		Str("url", rawURL).
		Str("error_class", string(class)).
		Msg("GET failed")
	return &Error{URL: rawURL, Class: class, Err: err}
}

func replyFromEntry(entry *cache.Entry) *Reply {
	return &Reply{
		StatusCode: entry.StatusCode,
		Body:       entry.Body,
		Header:     http.Header{},
		FromCache:  true,
	}
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
