package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// FETCH_MAX_CONCURRENT or FETCH_REDIS_ADDR.
const EnvPrefix = "FETCH"

// Load reads configuration in increasing priority: defaults, the YAML file
// at path (skipped when empty), then environment variables. A .env file in
// the working directory is loaded first and never overrides variables that
// are already set. The result is not validated; callers apply their own
// overrides and then call Validate.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	cfg.Endpoints = compact(cfg.Endpoints)
	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)

	return &cfg, nil
}

// applyDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "")
	v.SetDefault("endpoints", []string{})
	v.SetDefault("max_concurrent", 10)
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("backoff_unit", 1*time.Second)
	v.SetDefault("user_agent", "fetch-dispatcher/0.1.0")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_enabled", false)
	v.SetDefault("redis.cache_retention", time.Hour)
	v.SetDefault("redis.store_batches", false)
	v.SetDefault("redis.batch_ttl", 24*time.Hour)
	v.SetDefault("redis.track_rate_limits", true)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "stat %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// compact trims entries and drops empty ones.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
