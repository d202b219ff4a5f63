package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// chdir switches into an empty directory so a stray .env does not leak in.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.BaseURL)
	assert.Empty(t, cfg.Endpoints)
	assert.Equal(t, 10, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Second, cfg.BackoffUnit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Redis.BatchTTL)
	assert.Equal(t, time.Hour, cfg.Redis.CacheRetention)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := writeFile(t, dir, "fetch.yaml", `
base_url: https://api.example.com
endpoints:
  - /users
  - /orders
max_concurrent: 4
max_retries: 5
request_timeout: 5s
backoff_unit: 250ms
log:
  level: debug
  pretty: true
redis:
  addr: localhost:6379
  cache_enabled: true
  cache_retention: 10m
kafka:
  brokers: [localhost:9092]
  topic: fetch-results
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, []string{"/users", "/orders"}, cfg.Endpoints)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffUnit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Redis.CacheEnabled)
	assert.Equal(t, 10*time.Minute, cfg.Redis.CacheRetention)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "fetch-results", cfg.Kafka.Topic)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := writeFile(t, dir, "fetch.yaml", "base_url: https://file.example.com\nmax_concurrent: 4\n")

	t.Setenv("FETCH_BASE_URL", "https://env.example.com")
	t.Setenv("FETCH_MAX_CONCURRENT", "7")
	t.Setenv("FETCH_REDIS_ADDR", "redis:6379")
	t.Setenv("FETCH_ENDPOINTS", "/a, /b,,/c")
	t.Setenv("FETCH_REDIS_CACHE_RETENTION", "15m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
	assert.Equal(t, 7, cfg.MaxConcurrent)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"/a", "/b", "/c"}, cfg.Endpoints)
	assert.Equal(t, 15*time.Minute, cfg.Redis.CacheRetention)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, dir, ".env", "FETCH_MAX_RETRIES=9\n")
	// godotenv leaves the variable set for the rest of the process.
	t.Cleanup(func() { _ = os.Unsetenv("FETCH_MAX_RETRIES") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxRetries)
}

func TestLoad_MissingFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			BaseURL:        "https://api.example.com",
			MaxConcurrent:  10,
			MaxRetries:     3,
			RequestTimeout: 30 * time.Second,
			BackoffUnit:    time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base_url is required"},
		{"relative base url", func(c *Config) { c.BaseURL = "/api" }, "absolute URL"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }, "max_concurrent"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "max_retries"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"negative backoff", func(c *Config) { c.BackoffUnit = -time.Second }, "backoff_unit"},
		{"kafka without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }, "kafka.topic"},
		{"cache without redis", func(c *Config) { c.Redis.CacheEnabled = true }, "redis.addr"},
		{"store without redis", func(c *Config) { c.Redis.StoreBatches = true }, "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
