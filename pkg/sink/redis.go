package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Sternrassler/fetch-dispatcher/pkg/result"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultBatchPrefix namespaces batch keys in Redis.
	DefaultBatchPrefix = "fetch:batch:"

	// DefaultBatchTTL is how long a stored batch is kept.
	DefaultBatchTTL = 24 * time.Hour

	latestSuffix = "latest"
)

// ErrBatchNotFound is returned when no batch is stored under an ID.
var ErrBatchNotFound = errors.New("batch not found")

// RedisStore stores batches as JSON under prefix+ID and keeps a pointer
// to the most recent one.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a batch store. Empty prefix or non-positive ttl
// select the defaults.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultBatchPrefix
	}
	if ttl <= 0 {
		ttl = DefaultBatchTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Publish implements Publisher by saving the batch.
func (s *RedisStore) Publish(ctx context.Context, batch result.Batch) error {
	return record("redis", s.Save(ctx, batch))
}

// Save writes the batch and moves the latest pointer to it atomically.
func (s *RedisStore) Save(ctx context.Context, batch result.Batch) error {
	if batch.ID == "" {
		return errors.New("batch ID is required")
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "marshal batch")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.prefix+batch.ID, payload, s.ttl)
	pipe.Set(ctx, s.prefix+latestSuffix, batch.ID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis save batch")
	}
	return nil
}

// Load reads the batch stored under id.
func (s *RedisStore) Load(ctx context.Context, id string) (result.Batch, error) {
	val, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return result.Batch{}, errors.Wrapf(ErrBatchNotFound, "id %s", id)
		}
		return result.Batch{}, errors.Wrap(err, "redis get batch")
	}

	var batch result.Batch
	if err := json.Unmarshal(val, &batch); err != nil {
		return result.Batch{}, errors.Wrap(err, "unmarshal batch")
	}
	return batch, nil
}

// Latest reads the most recently saved batch.
func (s *RedisStore) Latest(ctx context.Context) (result.Batch, error) {
	id, err := s.client.Get(ctx, s.prefix+latestSuffix).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return result.Batch{}, ErrBatchNotFound
		}
		return result.Batch{}, errors.Wrap(err, "redis get latest")
	}
	return s.Load(ctx, id)
}
