package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/internal/queueconfig"
	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/internal/transport"
)

var cmdOut io.Writer = os.Stdout

// loadConfig loads the same BatchQueue_* configuration the worker and
// API binaries use, so the CLI always talks to the same backends.
func loadConfig() (*config.Config, error) {
	return config.Load("")
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

func queueFactory(cfg *config.BatchConfig) func(string) (queue.Queue, error) {
	return func(name string) (queue.Queue, error) {
		switch cfg.Transport.Driver {
		case "memory", "":
			return queue.NewMemoryQueue(), nil
		case "redis":
			qcfg := queue.DefaultRedisQueueConfig()
			qcfg.Addr = fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			qcfg.Password = cfg.Redis.Password
			qcfg.DB = cfg.Redis.Database
			qcfg.Stream = fmt.Sprintf("batchqueue:%s", name)
			qcfg.DLQStream = fmt.Sprintf("batchqueue:%s:dlq", name)
			return queue.NewRedisQueue(qcfg)
		case "nats":
			qcfg := queue.DefaultNATSQueueConfig()
			qcfg.URL = cfg.Transport.NATSUrl
			qcfg.Stream = fmt.Sprintf("BATCHQUEUE_%s", name)
			qcfg.Subject = fmt.Sprintf("batchqueue.%s", name)
			return queue.NewNATSQueue(qcfg)
		default:
			return nil, fmt.Errorf("unsupported transport driver: %s", cfg.Transport.Driver)
		}
	}
}

// openManager builds a BatchManager against the configured storage
// backend. The CLI never dispatches jobs, so, like the introspection
// API, it satisfies the constructor with a memory-backed router
// instead of opening a real transport connection.
func openManager() (*batchmgr.BatchManager, storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStorage(&cfg.Batch)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	router := transport.NewRouter(func(string) (queue.Queue, error) {
		return queue.NewMemoryQueue(), nil
	})
	dispatcher := dispatch.New(router, 50, 10)
	qcfg := queueconfig.New(&cfg.Batch)
	mgr := batchmgr.New(store, dispatcher, qcfg, registry.New())

	return mgr, store, nil
}
