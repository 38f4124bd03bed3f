package main

import (
	"fmt"
	"time"

	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/internal/worker"
)

// openStorage selects the storage backend named by cfg.Storage, mirroring
// the driver-switch shape the orchestrator uses for its database selection.
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

// queueFactory returns a transport.Factory opening one queue.Queue per
// name on the configured transport driver. A RedisQueue/NATSQueue is
// bound to a single stream/subject, so each distinct queue name gets
// its own client rather than a shared one.
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

func workerPoolConfig() worker.PoolConfig {
	return worker.PoolConfig{
		JobTimeout:    5 * time.Minute,
		ShutdownGrace: 30 * time.Second,
	}
}

func newPoolFor(cfg worker.PoolConfig, q queue.Queue, handler worker.JobHandler) *worker.Pool {
	return worker.NewPool(cfg, q, handler)
}
