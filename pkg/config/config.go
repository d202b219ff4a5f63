// Package config loads dispatcher settings from an optional YAML file, a
// .env file and FETCH_* environment variables.
package config

import (
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

// Config is the full runtime configuration.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	Endpoints      []string      `mapstructure:"endpoints"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BackoffUnit    time.Duration `mapstructure:"backoff_unit"`
	UserAgent      string        `mapstructure:"user_agent"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`

	Log   LogConfig   `mapstructure:"log"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// RedisConfig holds the Redis connection and what it is used for. An empty
// Addr disables both the response cache and the batch store.
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	CacheEnabled bool   `mapstructure:"cache_enabled"`

	// CacheRetention keeps a cached reply in Redis this long after it goes
	// stale so it can be revalidated. Freshness itself comes from the
	// reply's Cache-Control or Expires headers.
	CacheRetention time.Duration `mapstructure:"cache_retention"`

	StoreBatches bool          `mapstructure:"store_batches"`
	BatchTTL     time.Duration `mapstructure:"batch_ttl"`

	// TrackRateLimits records RateLimit-* reply headers per host.
	TrackRateLimits bool `mapstructure:"track_rate_limits"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// KafkaConfig holds the result topic. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether Kafka publishing is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Validate checks the configuration for values the dispatcher cannot run with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf("base_url must be an absolute URL (got %q)", c.BaseURL)
	}
	if c.MaxConcurrent < 1 {
		return errors.Newf("max_concurrent must be >= 1 (got %d)", c.MaxConcurrent)
	}
	if c.MaxRetries < 1 {
		return errors.Newf("max_retries must be >= 1 (got %d)", c.MaxRetries)
	}
	if c.RequestTimeout <= 0 {
		return errors.Newf("request_timeout must be > 0 (got %s)", c.RequestTimeout)
	}
	if c.BackoffUnit < 0 {
		return errors.Newf("backoff_unit must be >= 0 (got %s)", c.BackoffUnit)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}
	if (c.Redis.CacheEnabled || c.Redis.StoreBatches) && !c.Redis.Enabled() {
		return errors.New("redis.addr is required for the response cache or batch store")
	}
	return nil
}
