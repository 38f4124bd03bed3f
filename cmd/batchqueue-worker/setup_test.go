package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/internal/storage"
)

func TestOpenStorage_MemoryDriverReturnsMemoryStorage(t *testing.T) {
	store, err := openStorage(&config.BatchConfig{Storage: "memory"})
	require.NoError(t, err)
	_, ok := store.(*storage.MemoryStorage)
	assert.True(t, ok)
}

func TestOpenStorage_UnsupportedDriverErrors(t *testing.T) {
	_, err := openStorage(&config.BatchConfig{Storage: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestQueueFactory_MemoryDriverReturnsMemoryQueue(t *testing.T) {
	factory := queueFactory(&config.BatchConfig{})
	q, err := factory("parallel")
	require.NoError(t, err)
	assert.NotNil(t, q)
}

func TestQueueFactory_UnsupportedDriverErrors(t *testing.T) {
	cfg := &config.BatchConfig{}
	cfg.Transport.Driver = "carrier-pigeon"
	_, err := queueFactory(cfg)("parallel")
	assert.Error(t, err)
}

func TestWorkerPoolConfig_SetsTimeoutAndGrace(t *testing.T) {
	cfg := workerPoolConfig()
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)
}

func TestNewPoolFor_BuildsUsableWorkerPool(t *testing.T) {
	pool := newPoolFor(workerPoolConfig(), queue.NewMemoryQueue(), func(ctx context.Context, j *queue.Job) error { return nil })
	assert.NotNil(t, pool)
}
