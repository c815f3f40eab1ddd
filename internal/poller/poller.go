// Package poller consumes catalog change events and refreshes the cached
// catalog snapshot so terminals see new prices before the next refresh tick.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rijalghodi/qlaris-sub000/domain"
)

const defaultRetryDelay = time.Second

// CatalogChangedEvent is emitted by the catalog owner after products or
// categories change. An empty scope applies to every scope.
type CatalogChangedEvent struct {
	Scope     string `json:"scope"`
	ProductID string `json:"product_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type catalogRefresher interface {
	Refresh(ctx context.Context) (*domain.CatalogSnapshot, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Poller struct {
	catalog    catalogRefresher
	reader     messageReader
	scope      string
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewPoller reads topic as consumer group groupID. Every service instance
// needs its own group so each one refreshes its own cache.
func NewPoller(catalog catalogRefresher, scope, topic, groupID string, logger *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(catalog, reader, scope, logger)
}

func newPoller(catalog catalogRefresher, reader messageReader, scope string, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		catalog:    catalog,
		reader:     reader,
		scope:      scope,
		logger:     logger,
		retryDelay: defaultRetryDelay,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.processMessage(ctx)
	}
}

func (p *Poller) Close() error {
	return p.reader.Close()
}

func (p *Poller) processMessage(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Warn("error reading catalog event", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(p.retryDelay):
		}
		return
	}

	if err := p.handle(ctx, m); err != nil {
		p.logger.Warn("catalog event not applied",
			zap.Int64("offset", m.Offset),
			zap.Int("partition", m.Partition),
			zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	var event CatalogChangedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}
	if event.Scope != "" && event.Scope != p.scope {
		return nil
	}

	snapshot, err := p.catalog.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh catalog: %w", err)
	}
	p.logger.Info("catalog refreshed from event",
		zap.String("reason", event.Reason),
		zap.String("product_id", event.ProductID),
		zap.Int("products", len(snapshot.Products)))
	return nil
}
