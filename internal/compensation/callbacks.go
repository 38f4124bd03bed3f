package compensation

import (
	"context"
	"fmt"
	"time"

	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/pkg/jobapi"
)

// CompleteCallback is the built-in on_complete job of a compensation
// chain. It writes compensation_status = "completed" plus a timestamp
// back onto the original batch's context.
type CompleteCallback struct {
	store storage.Storage
}

// NewCompleteCallbackConstructor closes over store so the registry can
// build fresh instances without the core importing storage from user
// job code's perspective.
func NewCompleteCallbackConstructor(store storage.Storage) jobapi.Constructor {
	return func() jobapi.Job { return &CompleteCallback{store: store} }
}

// Execute implements jobapi.Job.
func (c *CompleteCallback) Execute(ctx context.Context, args map[string]interface{}) error {
	originalBatchID, ok := args["original_batch_id"].(string)
	if !ok || originalBatchID == "" {
		return fmt.Errorf("compensation_complete_callback: missing original_batch_id")
	}
	return mergeBatchContext(ctx, c.store, originalBatchID, map[string]interface{}{
		"compensation_status":     "completed",
		"compensation_updated_at": time.Now().UTC().Format("2006-01-02 15:04:05"),
	})
}

// FailedCallback is the built-in on_failure job of a compensation
// chain. It writes compensation_status = "failed" plus the error back
// onto the original batch's context.
type FailedCallback struct {
	store storage.Storage
}

// NewFailedCallbackConstructor mirrors NewCompleteCallbackConstructor.
func NewFailedCallbackConstructor(store storage.Storage) jobapi.Constructor {
	return func() jobapi.Job { return &FailedCallback{store: store} }
}

// Execute implements jobapi.Job.
func (c *FailedCallback) Execute(ctx context.Context, args map[string]interface{}) error {
	originalBatchID, ok := args["original_batch_id"].(string)
	if !ok || originalBatchID == "" {
		return fmt.Errorf("compensation_failed_callback: missing original_batch_id")
	}

	update := map[string]interface{}{
		"compensation_status":     "failed",
		"compensation_updated_at": time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
	if errVal, ok := args["error"]; ok {
		update["compensation_error"] = errVal
	}

	return mergeBatchContext(ctx, c.store, originalBatchID, update)
}
