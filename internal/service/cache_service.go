package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Generation(ctx context.Context, namespace string) (int64, error)
	Bump(ctx context.Context, namespace string) error
}

// CacheService is a read-through cache with per-namespace invalidation.
// Concurrent misses on the same key share a single load.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	flights    singleflight.Group
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Invalidate drops every value cached under namespace.
func (s *CacheService) Invalidate(ctx context.Context, namespace string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Bump(ctx, namespace); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("namespace", namespace), zap.Error(err))
		return err
	}
	return nil
}

// LoadCached returns the value cached under namespace and key, calling load
// on a miss and storing what it returns. The bool reports a cache hit. A nil
// or disabled cache always loads.
func LoadCached[T any](ctx context.Context, s *CacheService, namespace, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	if s == nil {
		value, err := load(ctx)
		return value, false, err
	}

	flightKey := namespace + ":" + key
	storeKey := ""
	if s.Enabled() {
		versioned, err := s.versionedKey(ctx, namespace, key)
		if err != nil {
			s.logger.Warn("cache generation lookup failed", zap.String("namespace", namespace), zap.Error(err))
		} else {
			var cached T
			if s.get(ctx, versioned, &cached) {
				return cached, true, nil
			}
			flightKey, storeKey = versioned, versioned
		}
	}

	shared, err, _ := s.flights.Do(flightKey, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if storeKey != "" {
			s.set(ctx, storeKey, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return shared.(T), false, nil
}

func (s *CacheService) versionedKey(ctx context.Context, namespace, key string) (string, error) {
	gen, err := s.repo.Generation(ctx, namespace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d:%s", namespace, gen, key), nil
}

func (s *CacheService) get(ctx context.Context, key string, dest interface{}) bool {
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

func (s *CacheService) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
