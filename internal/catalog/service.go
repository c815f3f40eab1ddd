// Package catalog reads the upstream product catalog, caches snapshots of it
// and filters them for the browsing surface.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rijalghodi/qlaris-sub000/domain"
)

const (
	defaultPageSize = 100
	// maxPages stops paging a misbehaving source that never returns a short page.
	maxPages = 1000
)

var ErrCacheMiss = errors.New("cache miss")

type Source interface {
	ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.ProductSnapshot, error)
	ListCategories(ctx context.Context, page, pageSize int) ([]domain.Category, error)
}

type Cache interface {
	Get(ctx context.Context, scope string) (*domain.CatalogSnapshot, error)
	Set(ctx context.Context, scope string, snapshot *domain.CatalogSnapshot) error
	Delete(ctx context.Context, scope string) error
}

type Service struct {
	source   Source
	cache    Cache
	scope    string
	pageSize int
	logger   *zap.Logger
	sfg      singleflight.Group // Prevents cache stampede
}

// NewService builds a catalog service. cache may be nil, in which case every
// Snapshot goes to the source.
func NewService(source Source, cache Cache, scope string, pageSize int, logger *zap.Logger) *Service {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		cache:    cache,
		scope:    scope,
		pageSize: pageSize,
		logger:   logger,
	}
}

func (s *Service) Snapshot(ctx context.Context) (*domain.CatalogSnapshot, error) {
	v, err, _ := s.sfg.Do(s.scope, func() (interface{}, error) {
		if s.cache != nil {
			snapshot, err := s.cache.Get(ctx, s.scope)
			if err == nil {
				return snapshot, nil
			}
			if !errors.Is(err, ErrCacheMiss) {
				s.logger.Warn("catalog cache get failed", zap.String("scope", s.scope), zap.Error(err))
			}
		}

		snapshot, err := s.load(ctx)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if errSet := s.cache.Set(ctx, s.scope, snapshot); errSet != nil {
					s.logger.Warn("catalog cache set failed", zap.String("scope", s.scope), zap.Error(errSet))
				}
			}()
		}
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CatalogSnapshot), nil
}

// Refresh reloads the catalog from the source and overwrites the cache.
func (s *Service) Refresh(ctx context.Context) (*domain.CatalogSnapshot, error) {
	v, err, _ := s.sfg.Do("refresh:"+s.scope, func() (interface{}, error) {
		snapshot, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if errSet := s.cache.Set(ctx, s.scope, snapshot); errSet != nil {
				s.logger.Warn("catalog cache set failed", zap.String("scope", s.scope), zap.Error(errSet))
			}
		}
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CatalogSnapshot), nil
}

func (s *Service) load(ctx context.Context) (*domain.CatalogSnapshot, error) {
	products, err := s.loadProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %w", domain.ErrCatalogUnavailable, err)
	}
	categories, err := s.loadCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", domain.ErrCatalogUnavailable, err)
	}

	s.logger.Debug("catalog loaded",
		zap.String("scope", s.scope),
		zap.Int("products", len(products)),
		zap.Int("categories", len(categories)))

	return &domain.CatalogSnapshot{
		Products:   products,
		Categories: categories,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func (s *Service) loadProducts(ctx context.Context) ([]domain.ProductSnapshot, error) {
	all := make([]domain.ProductSnapshot, 0, s.pageSize)
	for page := 1; page <= maxPages; page++ {
		batch, err := s.source.ListProducts(ctx, domain.ProductQuery{Page: page, PageSize: s.pageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < s.pageSize {
			break
		}
	}
	return all, nil
}

func (s *Service) loadCategories(ctx context.Context) ([]domain.Category, error) {
	all := make([]domain.Category, 0)
	for page := 1; page <= maxPages; page++ {
		batch, err := s.source.ListCategories(ctx, page, s.pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < s.pageSize {
			break
		}
	}
	return all, nil
}
