package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/rijalghodi/qlaris-sub000/internal/backend"
	"github.com/rijalghodi/qlaris-sub000/internal/cache"
	"github.com/rijalghodi/qlaris-sub000/internal/catalog"
	"github.com/rijalghodi/qlaris-sub000/internal/checkout"
	"github.com/rijalghodi/qlaris-sub000/internal/config"
	h "github.com/rijalghodi/qlaris-sub000/internal/http"
	"github.com/rijalghodi/qlaris-sub000/internal/poller"
	"github.com/rijalghodi/qlaris-sub000/internal/publisher"
	"github.com/rijalghodi/qlaris-sub000/internal/repository"
	"github.com/rijalghodi/qlaris-sub000/pkg/logger"
)

const sessionCleanupInterval = 5 * time.Minute

type settlementPublisher interface {
	checkout.SettlementPublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	if err := run(cfg, zl); err != nil {
		zl.Fatal("service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Transactions always go to the backend; the catalog may come from it
	// or from the local SQLite database.
	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendToken, cfg.BackendTimeout)

	var source catalog.Source = backendClient
	if cfg.CatalogSource == config.CatalogSourceSQLite {
		repo, err := repository.NewRepository(cfg.CatalogDBPath)
		if err != nil {
			return fmt.Errorf("open catalog database: %w", err)
		}
		defer repo.Close()
		if err := repo.RunMigrations(); err != nil {
			return fmt.Errorf("migrate catalog database: %w", err)
		}
		zl.Info("catalog database ready", zap.String("path", cfg.CatalogDBPath))
		source = repo
	}

	var snapshotCache catalog.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		zl.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		snapshotCache = cache.NewRedisCache(redisClient, cfg.CatalogCacheTTL)
	}

	catalogService := catalog.NewService(source, snapshotCache, cfg.CatalogScope, cfg.CatalogPageSize, zl.Named("catalog"))
	if _, err := catalogService.Refresh(ctx); err != nil {
		// terminals retry on their next browse
		zl.Warn("initial catalog load failed", zap.Error(err))
	}
	go catalog.NewRefresher(catalogService, cfg.CatalogRefreshInterval, zl.Named("catalog")).Run(ctx)

	if len(cfg.KafkaBrokers) > 0 && cfg.CatalogEventsTopic != "" {
		catalogEvents := poller.NewPoller(catalogService, cfg.CatalogScope, cfg.CatalogEventsTopic, cfg.CatalogEventsGroup,
			zl.Named("catalog-events"), cfg.KafkaBrokers...)
		defer catalogEvents.Close()
		go catalogEvents.Run(ctx)
		zl.Info("consuming catalog events", zap.String("topic", cfg.CatalogEventsTopic), zap.String("group", cfg.CatalogEventsGroup))
	}

	var pub settlementPublisher = publisher.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = publisher.NewKafkaPublisher(cfg.SettlementTopic, cfg.KafkaBrokers...)
		zl.Info("publishing settlements", zap.String("topic", cfg.SettlementTopic), zap.Strings("brokers", cfg.KafkaBrokers))
	}
	defer pub.Close()

	sessionLogger := zl.Named("checkout")
	registry := checkout.NewRegistry(func(terminalID string) *checkout.Controller {
		return checkout.NewController(terminalID, catalogService, backendClient, pub,
			checkout.WithLogger(sessionLogger),
			checkout.WithCommitTimeout(cfg.CommitTimeout),
			checkout.WithReceiptLoader(backendClient),
		)
	}, cfg.SessionIdleTTL, sessionCleanupInterval, sessionLogger)
	defer registry.Close()

	handler := h.NewTerminalHandler(registry, zl.Named("http"))
	router := h.NewRouter(handler, zl.Named("http"), cfg.RequestTimeout)

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     otelhttp.NewHandler(router, "pos-session"),
		ReadTimeout: 10 * time.Second,
		// the payment submit may take the whole commit timeout
		WriteTimeout: cfg.CommitTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zl.Info("POS session service starting", zap.String("port", cfg.HTTPPort), zap.String("catalog_source", cfg.CatalogSource))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		zl.Info("shutting down server", zap.Stringer("signal", sig))
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	zl.Info("server exited")
	return nil
}
