// Command fetch-dispatch fetches a list of endpoints under a base URL with
// bounded concurrency and prints the ordered batch as JSON.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Sternrassler/fetch-dispatcher/pkg/config"
	"github.com/Sternrassler/fetch-dispatcher/pkg/logging"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
)

var version = "0.1.0"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fetch-dispatch: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "fetch-dispatch",
		Usage:     "fetch endpoints concurrently with retries and print the results",
		UsageText: "fetch-dispatch [options] [endpoint ...]",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "base-url", Aliases: []string{"u"}, Usage: "base URL every endpoint is joined to"},
			&cli.StringFlag{Name: "endpoints-file", Aliases: []string{"f"}, Usage: "file with one endpoint per line"},
			&cli.IntFlag{Name: "max-concurrent", Aliases: []string{"n"}, Usage: "maximum requests in flight"},
			&cli.IntFlag{Name: "max-retries", Aliases: []string{"r"}, Usage: "attempts per endpoint"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-request timeout"},
			&cli.DurationFlag{Name: "backoff-unit", Usage: "delay before the first retry, doubled on each further retry"},
			&cli.StringFlag{Name: "user-agent", Usage: "User-Agent header"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
			&cli.BoolFlag{Name: "log-pretty", Usage: "human-readable logs"},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis address for the response cache and batch store"},
			&cli.BoolFlag{Name: "cache", Usage: "serve and revalidate responses through Redis"},
			&cli.BoolFlag{Name: "store", Usage: "store the batch in Redis"},
			&cli.StringSliceFlag{Name: "kafka-brokers", Usage: "Kafka brokers to publish responses to"},
			&cli.StringFlag{Name: "kafka-topic", Usage: "Kafka topic for responses"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve /metrics and /health on this address while running"},
			&cli.BoolFlag{Name: "fail-on-error", Usage: "exit non-zero when any response failed"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := applyFlags(c, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			if len(cfg.Endpoints) == 0 {
				return errors.New("no endpoints given")
			}

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Log.Level),
				Pretty: cfg.Log.Pretty,
				Output: c.App.ErrWriter,
			})

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, runOptions{
				Out:         out,
				FailOnError: c.Bool("fail-on-error"),
			})
		},
	}
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("base-url") {
		cfg.BaseURL = c.String("base-url")
	}
	if c.IsSet("max-concurrent") {
		cfg.MaxConcurrent = c.Int("max-concurrent")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("timeout") {
		cfg.RequestTimeout = c.Duration("timeout")
	}
	if c.IsSet("backoff-unit") {
		cfg.BackoffUnit = c.Duration("backoff-unit")
	}
	if c.IsSet("user-agent") {
		cfg.UserAgent = c.String("user-agent")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-pretty") {
		cfg.Log.Pretty = c.Bool("log-pretty")
	}
	if c.IsSet("redis-addr") {
		cfg.Redis.Addr = c.String("redis-addr")
	}
	if c.IsSet("cache") {
		cfg.Redis.CacheEnabled = c.Bool("cache")
	}
	if c.IsSet("store") {
		cfg.Redis.StoreBatches = c.Bool("store")
	}
	if c.IsSet("kafka-brokers") {
		cfg.Kafka.Brokers = c.StringSlice("kafka-brokers")
	}
	if c.IsSet("kafka-topic") {
		cfg.Kafka.Topic = c.String("kafka-topic")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	var endpoints []string
	if path := c.String("endpoints-file"); path != "" {
		fromFile, err := readEndpoints(path)
		if err != nil {
			return err
		}
		endpoints = append(endpoints, fromFile...)
	}
	endpoints = append(endpoints, c.Args().Slice()...)
	if len(endpoints) > 0 {
		cfg.Endpoints = endpoints
	}
	return nil
}

// readEndpoints reads one endpoint per line. Blank lines and lines
// starting with # are skipped.
func readEndpoints(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open endpoints file %s", path)
	}
	defer f.Close()

	var endpoints []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		endpoints = append(endpoints, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read endpoints file %s", path)
	}
	return endpoints, nil
}
