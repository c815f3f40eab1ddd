package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rijalghodi/qlaris-sub000/domain"
)

type mockSource struct {
	m             sync.RWMutex
	products      []domain.ProductSnapshot
	categories    []domain.Category
	err           error
	productCalls  atomic.Int32
	categoryCalls atomic.Int32
	delay         time.Duration
}

func (m *mockSource) ListProducts(_ context.Context, q domain.ProductQuery) ([]domain.ProductSnapshot, error) {
	m.productCalls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return page(m.products, q.Page, q.PageSize), nil
}

func (m *mockSource) ListCategories(_ context.Context, p, size int) ([]domain.Category, error) {
	m.categoryCalls.Add(1)
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return page(m.categories, p, size), nil
}

func page[T any](all []T, p, size int) []T {
	start := (p - 1) * size
	if start >= len(all) {
		return nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

type mockCache struct {
	m       sync.RWMutex
	entries map[string]*domain.CatalogSnapshot
	getErr  error
	sets    atomic.Int32
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*domain.CatalogSnapshot)}
}

func (c *mockCache) Get(_ context.Context, scope string) (*domain.CatalogSnapshot, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	s, ok := c.entries[scope]
	if !ok {
		return nil, ErrCacheMiss
	}
	return s, nil
}

func (c *mockCache) Set(_ context.Context, scope string, s *domain.CatalogSnapshot) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries[scope] = s
	c.sets.Add(1)
	return nil
}

func (c *mockCache) Delete(_ context.Context, scope string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.entries, scope)
	return nil
}

func (c *mockCache) has(scope string) bool {
	c.m.RLock()
	defer c.m.RUnlock()
	_, ok := c.entries[scope]
	return ok
}

func manyProducts(n int) []domain.ProductSnapshot {
	out := make([]domain.ProductSnapshot, n)
	for i := range out {
		out[i] = domain.ProductSnapshot{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Product %d", i), Price: 1000, IsActive: true}
	}
	return out
}

func TestSnapshot_PagesUntilShortPage(t *testing.T) {
	src := &mockSource{products: manyProducts(25), categories: []domain.Category{{ID: "c1", Name: "Drinks"}}}
	svc := NewService(src, nil, "main", 10, nil)

	snapshot, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Products, 25)
	assert.Len(t, snapshot.Categories, 1)
	assert.Equal(t, int32(3), src.productCalls.Load())
	assert.False(t, snapshot.FetchedAt.IsZero())
}

func TestSnapshot_ExactMultipleFetchesEmptyPage(t *testing.T) {
	src := &mockSource{products: manyProducts(20)}
	svc := NewService(src, nil, "main", 10, nil)

	snapshot, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Products, 20)
	assert.Equal(t, int32(3), src.productCalls.Load())
}

func TestSnapshot_CacheAside(t *testing.T) {
	src := &mockSource{products: manyProducts(3)}
	cache := newMockCache()
	svc := NewService(src, cache, "main", 100, nil)

	_, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return cache.has("main") }, time.Second, 5*time.Millisecond)

	_, err = svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.productCalls.Load(), "second read is served from cache")
}

func TestSnapshot_CacheErrorFallsBackToSource(t *testing.T) {
	src := &mockSource{products: manyProducts(2)}
	cache := newMockCache()
	cache.getErr = errors.New("redis down")
	svc := NewService(src, cache, "main", 100, nil)

	snapshot, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Products, 2)
}

func TestSnapshot_SourceFailure(t *testing.T) {
	src := &mockSource{err: errors.New("502 bad gateway")}
	svc := NewService(src, nil, "main", 100, nil)

	_, err := svc.Snapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	assert.Contains(t, err.Error(), "502 bad gateway")
}

func TestSnapshot_ConcurrentMissesCollapse(t *testing.T) {
	src := &mockSource{products: manyProducts(5), delay: 50 * time.Millisecond}
	svc := NewService(src, nil, "main", 100, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Snapshot(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, src.productCalls.Load(), int32(10))
}

func TestRefresh_OverwritesCache(t *testing.T) {
	src := &mockSource{products: manyProducts(1)}
	cache := newMockCache()
	svc := NewService(src, cache, "main", 100, nil)

	require.NoError(t, cache.Set(context.Background(), "main", &domain.CatalogSnapshot{}))

	src.m.Lock()
	src.products = manyProducts(4)
	src.m.Unlock()

	snapshot, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Products, 4)

	cached, err := cache.Get(context.Background(), "main")
	require.NoError(t, err)
	assert.Len(t, cached.Products, 4)
}

func TestRefresher_Run(t *testing.T) {
	src := &mockSource{products: manyProducts(1)}
	svc := NewService(src, nil, "main", 100, nil)
	r := NewRefresher(svc, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.productCalls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
