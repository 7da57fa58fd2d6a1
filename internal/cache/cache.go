package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All Redis operations go through here.
// Implementations must be safe for concurrent use. The cache is an
// accelerator: callers must treat any error as a miss and fall back to
// the store.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error

	SetJobForHash(ctx context.Context, inputHash string, jobID uuid.UUID, ttl time.Duration) error
	GetJobForHash(ctx context.Context, inputHash string) (uuid.UUID, bool, error)

	// SlidingWindowCount trims entries older than now-window from the sorted
	// set at key, records the current request, and returns how many requests
	// fall inside the window, current one included. The key expires at twice
	// the window so abandoned identifiers do not accumulate.
	SlidingWindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetJobForHash(ctx context.Context, inputHash string, jobID uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, JobForHashKey(inputHash), jobID.String(), ttl).Err()
}

func (c *RedisCache) GetJobForHash(ctx context.Context, inputHash string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, JobForHashKey(inputHash)).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		// Stale or corrupt entry; treat as a miss.
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (c *RedisCache) SlidingWindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	windowStart := now.Add(-window).UnixMilli()

	pipe := c.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// Compile-time check that RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
