package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrMiss = errors.New("cache miss")

// KV minimal string store behind the latest-reading cache
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	// SetMany writes every pair with the same ttl (0 = no expiry) as one unit.
	SetMany(ctx context.Context, pairs map[string]string, ttl time.Duration) error
}

type RedisKV struct {
	c *redis.Client
}

func NewRedisKV(c *redis.Client) *RedisKV { return &RedisKV{c: c} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// SetMany uses MULTI/EXEC so readers never see the global key ahead of the device key.
func (r *RedisKV) SetMany(ctx context.Context, pairs map[string]string, ttl time.Duration) error {
	if len(pairs) == 0 {
		return nil
	}
	_, err := r.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range pairs {
			p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return err
}
