package sink

import (
	"context"
	"fmt"

	"coffeeshop/internal/config"
	"coffeeshop/internal/sale"

	"github.com/redis/go-redis/v9"
)

// listPusher is the part of the redis client the sink uses.
type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// Redis appends every record to a Redis list.
type Redis struct {
	client listPusher
	key    string
}

// NewRedis connects lazily to the configured server; the first push opens
// the connection. Client retries are disabled so that a push is attempted at
// most once.
func NewRedis(cfg config.RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: -1,
	})
	return &Redis{client: client, key: cfg.Key}
}

func (s *Redis) Name() string { return "redis" }

func (s *Redis) Write(ctx context.Context, rec *sale.Record) error {
	payload, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: redis rpush %s: %v", ErrTransport, s.key, err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
