package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/catalog"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCache(client, 0)

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return cache, mr, cleanup
}

func sampleSnapshot() *domain.CatalogSnapshot {
	stock := 4
	return &domain.CatalogSnapshot{
		Products: []domain.ProductSnapshot{
			{ID: "p1", Name: "Kopi Susu", Price: 18000, EnableStock: true, StockQty: &stock, IsActive: true},
			{ID: "p2", Name: "Es Teh", Price: 8000, IsActive: true},
		},
		Categories: []domain.Category{{ID: "drinks", Name: "Drinks"}},
		FetchedAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	body, _ := json.Marshal(sampleSnapshot())
	require.NoError(t, mr.Set(cacheKey("store-1"), string(body)))

	result, err := cache.Get(context.Background(), "store-1")
	require.NoError(t, err)
	require.Len(t, result.Products, 2)
	assert.Equal(t, "Kopi Susu", result.Products[0].Name)
	require.NotNil(t, result.Products[0].StockQty)
	assert.Equal(t, 4, *result.Products[0].StockQty)
	assert.Nil(t, result.Products[1].StockQty)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, catalog.ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set(cacheKey("store-1"), "{not json"))

	_, err := cache.Get(context.Background(), "store-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, catalog.ErrCacheMiss)
}

func TestSet_WritesWithTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Set(context.Background(), "store-1", sampleSnapshot()))

	assert.True(t, mr.Exists("catalog:store-1"))
	ttl := mr.TTL("catalog:store-1")
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)
}

func TestSet_ExpiresAfterTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Set(context.Background(), "store-1", sampleSnapshot()))
	mr.FastForward(20 * time.Minute)

	_, err := cache.Get(context.Background(), "store-1")
	assert.ErrorIs(t, err, catalog.ErrCacheMiss)
}

func TestDelete(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "store-1", sampleSnapshot()))
	require.NoError(t, cache.Delete(ctx, "store-1"))
	assert.False(t, mr.Exists("catalog:store-1"))

	assert.NoError(t, cache.Delete(ctx, "store-1"), "deleting a missing key is not an error")
}

func TestRoundTripThroughService(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "store-1", sampleSnapshot()))

	svc := catalog.NewService(failingSource{}, cache, "store-1", 100, nil)
	snapshot, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Products, 2)
	assert.Equal(t, sampleSnapshot().FetchedAt, snapshot.FetchedAt)
}

type failingSource struct{}

func (failingSource) ListProducts(context.Context, domain.ProductQuery) ([]domain.ProductSnapshot, error) {
	return nil, assert.AnError
}

func (failingSource) ListCategories(context.Context, int, int) ([]domain.Category, error) {
	return nil, assert.AnError
}
