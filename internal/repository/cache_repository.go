package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/pkg/breaker"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

// CacheRepository stores JSON payloads in Redis. Calls go through a circuit
// breaker so a dead Redis fails fast instead of stalling every report request.
type CacheRepository struct {
	client  *redis.Client
	breaker *breaker.Breaker
	logger  *zap.Logger
}

// NewCacheRepository builds the repository. A nil breaker gets the default configuration.
func NewCacheRepository(client *redis.Client, br *breaker.Breaker, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if br == nil {
		br = breaker.New(breaker.DefaultConfig("redis-cache"), logger, appErrors.ErrCacheMiss)
	}
	return &CacheRepository{client: client, breaker: br, logger: logger}
}

// Get unmarshals the cached value into dest. A missing key yields ErrCacheMiss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	var raw []byte
	err := r.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return err
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.breaker.Do(ctx, func(ctx context.Context) error {
		return r.client.Set(ctx, key, payload, ttl).Err()
	}); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes every key matching pattern.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}

	err := r.breaker.Do(ctx, func(ctx context.Context) error {
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		return r.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("redis delete pattern %s: %w", pattern, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *CacheRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.breaker.Do(ctx, func(ctx context.Context) error {
		return r.client.Ping(ctx).Err()
	})
}

func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
