// Package cache stores catalog snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/catalog"
)

const defaultTTL = 15 * time.Minute

// NewRedisCache returns a cache whose entries live for baseTTL plus up to
// four minutes of jitter. A zero baseTTL means 15 minutes.
func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = defaultTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, scope string) (*domain.CatalogSnapshot, error) {
	data, err := r.client.Get(ctx, cacheKey(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, catalog.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshot domain.CatalogSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal catalog failed: %w", err)
	}
	return &snapshot, nil
}

func (r RedisCache) Set(ctx context.Context, scope string, snapshot *domain.CatalogSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal catalog failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(scope), body, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, scope string) error {
	if err := r.client.Del(ctx, cacheKey(scope)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(scope string) string {
	return fmt.Sprintf("catalog:%s", scope)
}
