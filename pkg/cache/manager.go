package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces cache keys in Redis.
	DefaultPrefix = "fetch:cache:"

	// DefaultRetention keeps expired entries around for revalidation.
	DefaultRetention = time.Hour
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager reads and writes entries in Redis.
type Manager struct {
	redis     redis.Cmdable
	prefix    string
	retention time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithRetention sets how long an entry is kept after it expires.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) { m.retention = d }
}

// NewManager creates a cache manager on top of a Redis client.
func NewManager(client redis.Cmdable, opts ...Option) *Manager {
	if client == nil {
		panic("redis client cannot be nil")
	}
	m := &Manager{
		redis:     client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) redisKey(key Key) string {
	return m.prefix + key.String()
}

// Get returns the entry for key. Expired entries are returned as well; use
// Entry.IsExpired to decide between serving and revalidating.
// Returns ErrCacheMiss if nothing is stored.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, m.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, errors.Wrap(err, "redis get")
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, errors.Wrapf(ErrInvalidEntry, "%v", err)
	}

	return &entry, nil
}

// Set stores entry for its remaining freshness plus the retention window.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	ttl := entry.TTL() + m.retention
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return errors.Wrap(err, "marshal cache entry")
	}

	if err := m.redis.Set(ctx, m.redisKey(key), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return errors.Wrap(err, "redis set")
	}

	CacheStoredBytes.Add(float64(len(entry.Body)))
	return nil
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, m.redisKey(key)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return errors.Wrap(err, "redis del")
	}
	return nil
}

// Refresh moves the freshness deadline of entry to expires and stores it
// again. Used after a 304 Not Modified.
func (m *Manager) Refresh(ctx context.Context, key Key, entry *Entry, expires time.Time) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	refreshed := *entry
	refreshed.Expires = expires
	return m.Set(ctx, key, &refreshed)
}
