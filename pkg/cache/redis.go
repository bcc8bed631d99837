package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a raw value stored under an unprefixed key.
type Entry struct {
	Key      string
	Value    []byte
	ExpireAt time.Time
}

// RedisCache is a prefixed byte store on top of a Redis client.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a Redis cache client and pings it unless LazyConnect is set.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 5,
		Prefix:       "signalgrid",
	}

	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
		MinIdleConns: cfg.MinIdleConns,
	})

	rc := &RedisCache{
		client: client,
		prefix: cfg.Prefix,
	}
	if cfg.LazyConnect {
		return rc, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rc, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetAt stores value under key with an absolute expiry (SET ... EXAT).
// A zero expireAt stores the key without expiry.
func (c *RedisCache) SetAt(ctx context.Context, key string, value []byte, expireAt time.Time) error {
	return c.client.SetArgs(ctx, c.wrapKey(key), value, setArgs(expireAt)).Err()
}

// SetManyAt writes all entries in one pipeline round trip.
func (c *RedisCache) SetManyAt(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, e := range entries {
		pipe.SetArgs(ctx, c.wrapKey(e.Key), e.Value, setArgs(e.ExpireAt))
	}
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return err
	}
	for _, cmd := range cmds {
		if cmd.Err() != nil {
			return cmd.Err()
		}
	}
	return nil
}

// ScanAll walks every key under the prefix with SCAN and fetches values with MGET.
// Keys that vanish between SCAN and MGET are skipped.
func (c *RedisCache) ScanAll(ctx context.Context, count int64) ([]Entry, error) {
	if count <= 0 {
		count = 500
	}

	var (
		cursor uint64
		out    []Entry
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.wrapKey("*"), count).Result()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if len(keys) > 0 {
			vals, err := c.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("mget: %w", err)
			}
			for i, key := range keys {
				s, ok := vals[i].(string)
				if !ok {
					continue
				}
				out = append(out, Entry{Key: c.unwrapKey(key), Value: []byte(s)})
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func setArgs(expireAt time.Time) redis.SetArgs {
	if expireAt.IsZero() {
		return redis.SetArgs{}
	}
	return redis.SetArgs{ExpireAt: expireAt}
}

func (c *RedisCache) wrapKey(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *RedisCache) unwrapKey(key string) string {
	return strings.TrimPrefix(key, c.prefix+":")
}

