package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/compensation"
	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/processor"
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
	logger.Info("starting batchqueue worker")

	metrics := observability.NewMetrics()

	store, err := openStorage(&cfg.Batch)
	if err != nil {
		logger.ErrorWithErr(err, "failed to initialize storage")
		os.Exit(1)
	}
	defer store.Close()
	logger.Infof("using %s storage backend", cfg.Batch.Storage)

	router := transport.NewRouter(queueFactory(&cfg.Batch))
	defer router.Close()

	reg := registry.New()
	reg.Register(compensation.CompleteCallbackClass, compensation.NewCompleteCallbackConstructor(store))
	reg.Register(compensation.FailedCallbackClass, compensation.NewFailedCallbackConstructor(store))

	qcfg := queueconfig.New(&cfg.Batch)
	dispatcher := dispatch.New(router, 50, 10)
	mgr := batchmgr.New(store, dispatcher, qcfg, reg)
	comp := compensation.New(mgr)

	parallelProc := processor.NewParallelProcessor(store, dispatcher, reg, comp, &cfg.Batch, logger, metrics)
	chainProc := processor.NewChainProcessor(store, dispatcher, reg, comp, &cfg.Batch, logger, metrics)

	parallelQueueName := qcfg.Resolve(batchjob.TypeParallel, "", "")
	sequentialQueueName := qcfg.Resolve(batchjob.TypeSequential, "", "")

	parallelQueue, err := router.Queue(parallelQueueName)
	if err != nil {
		logger.ErrorWithErr(err, "failed to open parallel queue")
		os.Exit(1)
	}
	sequentialQueue, err := router.Queue(sequentialQueueName)
	if err != nil {
		logger.ErrorWithErr(err, "failed to open sequential queue")
		os.Exit(1)
	}

	workerCount := cfg.Batch.Transport.Workers
	if workerCount <= 0 {
		workerCount = 5
	}

	poolCfg := workerPoolConfig()

	parallelPool := newPoolFor(poolCfg, parallelQueue, func(ctx context.Context, j *queue.Job) error {
		env, err := transport.FromJob(j)
		if err != nil {
			return err
		}
		return parallelProc.Process(ctx, env)
	})
	sequentialPool := newPoolFor(poolCfg, sequentialQueue, func(ctx context.Context, j *queue.Job) error {
		env, err := transport.FromJob(j)
		if err != nil {
			return err
		}
		return chainProc.Process(ctx, env)
	})

	if err := parallelPool.Start(workerCount); err != nil {
		logger.ErrorWithErr(err, "failed to start parallel worker pool")
		os.Exit(1)
	}
	if err := sequentialPool.Start(workerCount); err != nil {
		logger.ErrorWithErr(err, "failed to start sequential worker pool")
		os.Exit(1)
	}
	logger.Infof("worker pools started: %d workers on %q, %d workers on %q", workerCount, parallelQueueName, workerCount, sequentialQueueName)

	if cfg.Observability.MetricsEnabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Observability.MetricsPort)
			logger.Infof("starting metrics server on %s", addr)
			if err := http.ListenAndServe(addr, metrics.Handler()); err != nil {
				logger.ErrorWithErr(err, "metrics server stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Infof("received shutdown signal: %s", sig.String())

	shutdownGrace := 30 * time.Second
	if err := parallelPool.Stop(shutdownGrace); err != nil {
		logger.ErrorWithErr(err, "error stopping parallel worker pool")
	}
	if err := sequentialPool.Stop(shutdownGrace); err != nil {
		logger.ErrorWithErr(err, "error stopping sequential worker pool")
	}
	logger.Info("batchqueue worker shutdown complete")
}
