package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rijalghodi/qlaris-sub000/domain"
)

func newTestRegistry(t *testing.T, idleTTL, interval time.Duration) *Registry {
	t.Helper()
	catalog := &mockCatalog{snapshot: fixtureCatalog()}
	factory := func(terminalID string) *Controller {
		return NewController(terminalID, catalog, &mockCreator{}, &mockPublisher{})
	}
	r := NewRegistry(factory, idleTTL, interval, nil)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	r := newTestRegistry(t, 0, 0)

	a := r.Get("till-1")
	b := r.Get("till-1")
	c := r.Get("till-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "till-2", c.TerminalID())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	r := newTestRegistry(t, 0, 0)

	var wg sync.WaitGroup
	seen := make([]*Controller, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = r.Get(fmt.Sprintf("till-%d", i%5))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, r.Len())
	for i := range seen {
		assert.Same(t, r.Get(fmt.Sprintf("till-%d", i%5)), seen[i])
	}
}

func TestRegistry_EvictIdleKeepsWork(t *testing.T) {
	r := newTestRegistry(t, time.Minute, 0)

	empty := r.Get("till-empty")
	busy := r.Get("till-busy")
	_, err := busy.QuickAdd(context.Background(), "teh", 1)
	require.NoError(t, err)

	assert.Equal(t, 0, r.evictIdle(time.Now()), "nothing is idle yet")

	evicted := r.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, r.Len())
	assert.Same(t, busy, r.Get("till-busy"))
	assert.NotSame(t, empty, r.Get("till-empty"), "a fresh controller replaces the evicted one")
}

func TestRegistry_EvictionBetweenGetAndMutation(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, time.Minute, 0)

	stale := r.Get("till-1")
	require.Equal(t, 1, r.evictIdle(time.Now().Add(2*time.Hour)))

	_, err := stale.QuickAdd(ctx, "teh", 2)
	require.ErrorIs(t, err, domain.ErrSessionEvicted)
	assert.Zero(t, stale.Order().ItemCount, "an evicted controller takes no work")

	fresh := r.Get("till-1")
	require.NotSame(t, stale, fresh)
	_, err = fresh.QuickAdd(ctx, "teh", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Get("till-1").Order().ItemCount)
}

func TestRegistry_EvictIdleSkipsControllerBusiedAfterCheck(t *testing.T) {
	r := newTestRegistry(t, time.Minute, 0)
	c := r.Get("till-1")
	_, err := c.QuickAdd(context.Background(), "kopi", 1)
	require.NoError(t, err)

	assert.Zero(t, r.evictIdle(time.Now().Add(2*time.Hour)))
	assert.Same(t, c, r.Get("till-1"))
}

func TestRegistry_CleanupLoop(t *testing.T) {
	r := newTestRegistry(t, time.Millisecond, 5*time.Millisecond)
	r.Get("till-1")

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_CloseIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, time.Minute, time.Minute)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}
