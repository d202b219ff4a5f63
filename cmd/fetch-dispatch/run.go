package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/Sternrassler/fetch-dispatcher/pkg/cache"
	"github.com/Sternrassler/fetch-dispatcher/pkg/config"
	"github.com/Sternrassler/fetch-dispatcher/pkg/dispatch"
	"github.com/Sternrassler/fetch-dispatcher/pkg/fetch"
	"github.com/Sternrassler/fetch-dispatcher/pkg/logging"
	"github.com/Sternrassler/fetch-dispatcher/pkg/ratelimit"
	"github.com/Sternrassler/fetch-dispatcher/pkg/sink"
	"github.com/Sternrassler/fetch-dispatcher/pkg/transport"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// ErrFailedResponses is returned with --fail-on-error when the batch holds
// at least one failed response.
var ErrFailedResponses = errors.New("batch contains failed responses")

type runOptions struct {
	Out         io.Writer
	FailOnError bool

	// redis replaces the client built from cfg.Redis (tests).
	redis redis.UniversalClient
}

// run executes one batch for cfg, publishes it and writes it to opts.Out.
func run(ctx context.Context, cfg *config.Config, opts runOptions) error {
	logger := logging.NewLogger("cli")

	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		startMetricsServer(metricsCtx, cfg.MetricsAddr)
	}

	rdb := opts.redis
	if rdb == nil && cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "connect to redis at %s", cfg.Redis.Addr)
		}
		logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	var transportOpts []transport.Option
	if cfg.Redis.CacheEnabled && rdb != nil {
		transportOpts = append(transportOpts, transport.WithCache(
			cache.NewManager(rdb, cache.WithRetention(cfg.Redis.CacheRetention)),
		))
	}
	if cfg.Redis.TrackRateLimits && rdb != nil {
		transportOpts = append(transportOpts, transport.WithObserver(ratelimit.NewTracker(rdb)))
	}

	client, err := transport.New(transport.Config{
		Timeout:             cfg.RequestTimeout,
		UserAgent:           cfg.UserAgent,
		MaxIdleConnsPerHost: cfg.MaxConcurrent,
	}, transportOpts...)
	if err != nil {
		return errors.Wrap(err, "create transport")
	}

	task := fetch.NewTask(client, fetch.Config{
		Backoff: fetch.Backoff{Unit: cfg.BackoffUnit, Multiplier: 2},
	})

	dispatcher, err := dispatch.New(dispatch.Config{
		BaseURL:       cfg.BaseURL,
		MaxConcurrent: cfg.MaxConcurrent,
		MaxRetries:    cfg.MaxRetries,
	}, task)
	if err != nil {
		return err
	}

	publishers, closeAll := buildPublishers(cfg, rdb)
	defer closeAll()

	batch, dispatchErr := dispatcher.Dispatch(ctx, cfg.Endpoints)

	var errs error
	if dispatchErr != nil {
		errs = errors.CombineErrors(errs, dispatchErr)
	}

	if len(publishers) > 0 {
		// The batch is published even when interrupted; it is complete.
		if err := publishers.Publish(context.WithoutCancel(ctx), batch); err != nil {
			logger.Error().Err(err).Str("batch_id", batch.ID).Msg("Failed to publish batch")
			errs = errors.CombineErrors(errs, errors.Wrap(err, "publish batch"))
		}
	}

	enc := json.NewEncoder(opts.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batch); err != nil {
		return errors.CombineErrors(errs, errors.Wrap(err, "write batch"))
	}

	succeeded, failed := batch.Summary()
	logger.Info().
		Str("batch_id", batch.ID).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("duration", batch.Duration).
		Msg("Batch written")

	if errs == nil && opts.FailOnError && failed > 0 {
		return errors.Wrapf(ErrFailedResponses, "%d of %d", failed, batch.Len())
	}
	return errs
}

// buildPublishers assembles the configured sinks and a func closing the
// ones that hold connections.
func buildPublishers(cfg *config.Config, rdb redis.Cmdable) (sink.Multi, func()) {
	logger := logging.NewLogger("cli")

	var publishers sink.Multi
	var closers []io.Closer

	if cfg.Redis.StoreBatches && rdb != nil {
		publishers = append(publishers, sink.NewRedisStore(rdb, "", cfg.Redis.BatchTTL))
	}
	if cfg.Kafka.Enabled() {
		kp := sink.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publishers = append(publishers, kp)
		closers = append(closers, kp)
	}

	return publishers, func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close publisher")
			}
		}
	}
}
