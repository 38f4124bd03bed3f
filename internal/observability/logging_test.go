package observability

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func()) map[string]interface{} {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	scanner := bufio.NewScanner(r)
	require.True(t, scanner.Scan(), "expected at least one logged line")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &out))
	return out
}

func TestLogger_InfoWritesJSONLine(t *testing.T) {
	line := captureStdout(t, func() {
		NewLogger("info", "json").Info("batch dispatched")
	})
	assert.Equal(t, "batch dispatched", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestLogger_WithFieldAddsKey(t *testing.T) {
	line := captureStdout(t, func() {
		NewLogger("info", "json").WithField("batch_id", "b-1").Info("dispatched")
	})
	assert.Equal(t, "b-1", line["batch_id"])
}

func TestLogger_WithFieldsAddsEveryKey(t *testing.T) {
	line := captureStdout(t, func() {
		NewLogger("info", "json").WithFields(map[string]interface{}{
			"batch_id": "b-1",
			"status":   "completed",
		}).Info("terminal")
	})
	assert.Equal(t, "b-1", line["batch_id"])
	assert.Equal(t, "completed", line["status"])
}

func TestLogger_ErrorWithErrAttachesError(t *testing.T) {
	line := captureStdout(t, func() {
		NewLogger("error", "json").ErrorWithErr(assert.AnError, "job failed")
	})
	assert.Equal(t, "job failed", line["message"])
	assert.NotEmpty(t, line["error"])
}

func TestBatchLogger_ScopesBatchFields(t *testing.T) {
	NewLogger("info", "json") // sets the global zerolog level BatchLogger's default logger honors
	line := captureStdout(t, func() {
		// BatchLogger derives from the global zerolog logger, which
		// writes to stderr unless replaced.
		SetGlobalLogger(NewLogger("info", "json"))
		BatchLogger("b-1", "parallel").Info("created")
	})
	assert.Equal(t, "b-1", line["batch_id"])
	assert.Equal(t, "parallel", line["batch_type"])
}

func TestChainLogger_ScopesPositionField(t *testing.T) {
	NewLogger("info", "json")
	line := captureStdout(t, func() {
		SetGlobalLogger(NewLogger("info", "json"))
		ChainLogger("b-1", 2).Info("advanced")
	})
	assert.Equal(t, float64(2), line["position"])
}
