package checkout

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Factory builds the controller for a terminal seen for the first time.
type Factory func(terminalID string) *Controller

// Registry maps terminal IDs to their controllers and evicts the ones left
// idle with nothing in them.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*Controller
	factory     Factory
	idleTTL     time.Duration
	logger      *zap.Logger

	stopCleanup chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewRegistry starts the cleanup loop when both idleTTL and cleanupInterval
// are positive.
func NewRegistry(factory Factory, idleTTL, cleanupInterval time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		controllers: make(map[string]*Controller),
		factory:     factory,
		idleTTL:     idleTTL,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	if idleTTL > 0 && cleanupInterval > 0 {
		r.wg.Add(1)
		go r.cleanupLoop(cleanupInterval)
	}
	return r
}

// Get returns the terminal's controller, creating it on first use.
func (r *Registry) Get(terminalID string) *Controller {
	r.mu.RLock()
	c, ok := r.controllers[terminalID]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[terminalID]; ok {
		return c
	}
	c = r.factory(terminalID)
	r.controllers[terminalID] = c
	r.logger.Info("terminal session created", zap.String("terminal_id", terminalID))
	return c
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.evictIdle(now)
		case <-r.stopCleanup:
			return
		}
	}
}

// evictIdle drops controllers inactive for longer than the idle TTL whose
// order is empty. Evicted controllers are retired first, so a handler that
// fetched one just before eviction gets ErrSessionEvicted instead of writing
// into an orphan.
func (r *Registry) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, c := range r.controllers {
		if now.Sub(c.LastActivity()) < r.idleTTL || !c.Retire() {
			continue
		}
		c.Wait()
		delete(r.controllers, id)
		evicted++
		r.logger.Info("terminal session evicted", zap.String("terminal_id", id))
	}
	return evicted
}

// Close stops the cleanup loop and waits for pending settlement publishes.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopCleanup)
	})
	r.wg.Wait()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.controllers {
		c.Wait()
	}
	return nil
}
