package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher reloads the catalog on a fixed interval so browsing never waits
// on an expired cache.
type Refresher struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

func NewRefresher(service *Service, interval time.Duration, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{service: service, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("catalog refresher started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("catalog refresher stopped")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()
	snapshot, err := r.service.Refresh(ctx)
	if err != nil {
		r.logger.Warn("catalog refresh failed", zap.Error(err))
		return
	}
	r.logger.Debug("catalog refreshed", zap.Int("products", len(snapshot.Products)))
}
