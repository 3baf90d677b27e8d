package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/freight-session/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// RedisStore is a durable key-value scope backed by Redis.
type RedisStore struct {
	conn *Redis
}

// NewRedisStore builds a store over an existing connection.
func NewRedisStore(conn *Redis) *RedisStore {
	return &RedisStore{conn: conn}
}

// Get returns the value for key; ok is false when the key is absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.conn.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes key without expiry; expiry is enforced by the session layer.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.conn.Client.Set(ctx, key, value, 0).Err()
}

// Remove deletes key. Missing keys are not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.conn.Client.Del(ctx, key).Err()
}

// Ping verifies the backing connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
