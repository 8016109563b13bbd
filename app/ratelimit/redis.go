package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the multi-instance limiter: SET NX with expiry means only
// one instance wins the key per interval.
type Redis struct {
	client      *redis.Client
	prefix      string
	minInterval time.Duration
}

var _ Limiter = (*Redis)(nil)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedis(cfg RedisConfig, minInterval time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "pourover:ratelimit:"
	}

	return &Redis{
		client:      client,
		prefix:      prefix,
		minInterval: minInterval,
	}, nil
}

// Allow fails open: a redis outage must not lock every instance out of
// the job endpoints.
func (l *Redis) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := l.client.SetNX(ctx, l.prefix+key, 1, l.minInterval).Result()
	if err != nil {
		slog.Error("Rate limiter redis failure, allowing", "key", key, "error", err)
		return true
	}
	return ok
}

func (l *Redis) Reset(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		slog.Error("Rate limiter redis reset failure", "key", key, "error", err)
	}
}

func (l *Redis) Close() error {
	return l.client.Close()
}
