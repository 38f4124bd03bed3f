package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/cache"
	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/grpcapi"
	"github.com/gongahkia/batchqueue/internal/httpapi"
	"github.com/gongahkia/batchqueue/internal/httpapi/middleware"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/internal/queueconfig"
	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/internal/transport"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	logger.Info("starting batchqueue introspection API")

	metrics := observability.NewMetrics()

	store, err := openStorage(&cfg.Batch)
	if err != nil {
		logger.ErrorWithErr(err, "failed to initialize storage")
		os.Exit(1)
	}
	defer store.Close()

	// The API is read-only: it never dispatches, so a memory-backed
	// router satisfies BatchManager's constructor without opening a
	// real transport connection.
	router := transport.NewRouter(func(string) (queue.Queue, error) {
		return queue.NewMemoryQueue(), nil
	})
	defer router.Close()

	dispatcher := dispatch.New(router, 50, 10)
	qcfg := queueconfig.New(&cfg.Batch)
	mgr := batchmgr.New(store, dispatcher, qcfg, registry.New())

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured; introspection API will reject every bearer token")
	}
	auth := &middleware.AuthConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTExpiration: cfg.Auth.JWTExpiration,
	}

	progressCache, err := cache.NewCache(&cache.Config{
		Type: cfg.Batch.Cache.Type,
		TTL:  cfg.Batch.Cache.TTL,
	}, fmt.Sprintf("%s:%d", cfg.Batch.Redis.Host, cfg.Batch.Redis.Port))
	if err != nil {
		logger.ErrorWithErr(err, "failed to initialize progress cache, continuing without one")
		progressCache = nil
	}

	server := httpapi.NewServer(store, mgr, logger, metrics, auth, progressCache, cfg.Batch.Cache.TTL)
	server.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Infof("introspection API listening on %s", addr)
		if err := server.Start(addr); err != nil {
			logger.ErrorWithErr(err, "introspection API server stopped")
		}
	}()

	var grpcServer *grpcapi.Server
	if cfg.Server.EnableGRPC {
		grpcServer, err = grpcapi.NewServer(&grpcapi.ServerConfig{
			Port:    cfg.Server.GRPCPort,
			Manager: mgr,
			Logger:  logger,
			Metrics: metrics,
		})
		if err != nil {
			logger.ErrorWithErr(err, "failed to start gRPC introspection server")
		} else {
			go func() {
				if err := grpcServer.Start(); err != nil {
					logger.ErrorWithErr(err, "gRPC introspection server stopped")
				}
			}()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	logger.Info("shutting down introspection API")

	if grpcServer != nil {
		grpcServer.Stop()
	}
	if err := server.Shutdown(); err != nil {
		logger.ErrorWithErr(err, "error during API shutdown")
	}
	logger.Info("batchqueue API shutdown complete")
}

func openStorage(cfg *config.BatchConfig) (storage.Storage, error) {
	switch cfg.Storage {
	case "memory", "":
		return storage.NewMemoryStorage(), nil
	case "sql":
		switch cfg.SQL.Driver {
		case "sqlite", "":
			path := cfg.SQL.Connection
			if path == "" {
				path = "batchqueue.db"
			}
			return storage.NewSQLiteStorage(path)
		case "postgres":
			return storage.NewPostgresStorage(cfg.SQL.Connection)
		default:
			return nil, fmt.Errorf("unsupported sql driver: %s", cfg.SQL.Driver)
		}
	case "redis":
		return storage.NewRedisStorage(&storage.RedisStorageConfig{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
	default:
		return nil, fmt.Errorf("unsupported batch storage backend: %s", cfg.Storage)
	}
}
