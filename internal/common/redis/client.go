package redis

import (
	"context"
	"time"

	"wisefido-envlog/internal/common/config"

	"github.com/go-redis/redis/v8"
)

// Client alias so callers don't import go-redis directly
type Client = redis.Client

// NewRedisClient builds a client; it does not dial until first use.
func NewRedisClient(cfg *config.RedisConfig) *Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func Ping(ctx context.Context, client *Client) error {
	return client.Ping(ctx).Err()
}

func Close(client *Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
