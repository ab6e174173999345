package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// CacheRepository stores JSON payloads in Redis under a fixed prefix. Each
// namespace carries a generation counter; bumping it orphans every key
// written under the previous generation, which then ages out by TTL.
//
// A nil client turns every read into a miss and every write into a no-op.
type CacheRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, prefix string, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, prefix: prefix, logger: logger}
}

func (r *CacheRepository) key(parts ...string) string {
	out := r.prefix
	for _, p := range parts {
		if out != "" {
			out += ":"
		}
		out += p
	}
	return out
}

// Get retrieves and unmarshals the cached value into dest.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set marshals value and stores it with ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Generation returns the namespace's current generation, 0 if never bumped.
func (r *CacheRepository) Generation(ctx context.Context, namespace string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	raw, err := r.client.Get(ctx, r.key(namespace, "gen")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get generation %s: %w", namespace, err)
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation %s: %w", namespace, err)
	}
	return gen, nil
}

// Bump advances the namespace generation.
func (r *CacheRepository) Bump(ctx context.Context, namespace string) error {
	if r.client == nil {
		return nil
	}
	gen, err := r.client.Incr(ctx, r.key(namespace, "gen")).Result()
	if err != nil {
		return fmt.Errorf("redis incr generation %s: %w", namespace, err)
	}
	r.logger.Debug("cache generation bumped", zap.String("namespace", namespace), zap.Int64("generation", gen))
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
