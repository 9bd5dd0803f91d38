package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSharedMiss is returned by SharedBackend.Get when the key is absent.
var ErrSharedMiss = errors.New("shared cache: miss")

// SharedBackend is the optional out-of-process tier. Implementations must be
// safe for concurrent use. Ping is consulted once at startup to decide
// whether the shared tier is enabled at all.
type SharedBackend interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisBackend implements SharedBackend on a Redis instance.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(addr, password string, db int) *RedisBackend {
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSharedMiss
	}
	return val, err
}

func (r *RedisBackend) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// NoopBackend stands in when no shared tier is configured or the configured
// one is unreachable, so call sites never branch on presence.
type NoopBackend struct{}

func (NoopBackend) Get(context.Context, string) (string, error) { return "", ErrSharedMiss }

func (NoopBackend) SetWithTTL(context.Context, string, string, time.Duration) error { return nil }

func (NoopBackend) Ping(context.Context) error { return nil }

func (NoopBackend) Close() error { return nil }
