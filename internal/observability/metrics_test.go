package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var testMetrics = NewMetrics()

func TestRecordBatchCreated_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.BatchesCreated.WithLabelValues("parallel"))
	testMetrics.RecordBatchCreated("parallel")
	after := testutil.ToFloat64(testMetrics.BatchesCreated.WithLabelValues("parallel"))
	assert.Equal(t, before+1, after)
}

func TestRecordBatchTerminal_IncrementsCompletedAndObservesDuration(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.BatchesCompleted.WithLabelValues("chain", "completed"))
	testMetrics.RecordBatchTerminal("chain", "completed", 2*time.Second)
	after := testutil.ToFloat64(testMetrics.BatchesCompleted.WithLabelValues("chain", "completed"))
	assert.Equal(t, before+1, after)
}

func TestRecordJob_FailedStatusAlsoIncrementsErrors(t *testing.T) {
	beforeTotal := testutil.ToFloat64(testMetrics.BatchJobsTotal.WithLabelValues("send_email", "failed"))
	beforeErrors := testutil.ToFloat64(testMetrics.BatchJobErrors.WithLabelValues("send_email"))

	testMetrics.RecordJob("send_email", "failed", time.Millisecond)

	assert.Equal(t, beforeTotal+1, testutil.ToFloat64(testMetrics.BatchJobsTotal.WithLabelValues("send_email", "failed")))
	assert.Equal(t, beforeErrors+1, testutil.ToFloat64(testMetrics.BatchJobErrors.WithLabelValues("send_email")))
}

func TestRecordJob_SucceededStatusDoesNotIncrementErrors(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.BatchJobErrors.WithLabelValues("ship"))
	testMetrics.RecordJob("ship", "completed", time.Millisecond)
	assert.Equal(t, before, testutil.ToFloat64(testMetrics.BatchJobErrors.WithLabelValues("ship")))
}

func TestRecordStorageOp_ErrorIncrementsErrorCounter(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.StorageErrors.WithLabelValues("get_batch"))
	testMetrics.RecordStorageOp("get_batch", assert.AnError, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.StorageErrors.WithLabelValues("get_batch")))
}

func TestRecordStorageOp_SuccessDoesNotIncrementErrorCounter(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.StorageErrors.WithLabelValues("create_batch"))
	testMetrics.RecordStorageOp("create_batch", nil, time.Millisecond)
	assert.Equal(t, before, testutil.ToFloat64(testMetrics.StorageErrors.WithLabelValues("create_batch")))
}

func TestRecordHTTPRequest_IncrementsTotal(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/batches", "200"))
	testMetrics.RecordHTTPRequest("GET", "/api/v1/batches", "200", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/batches", "200")))
}

func TestHandler_ReturnsNonNilHTTPHandler(t *testing.T) {
	assert.NotNil(t, testMetrics.Handler())
}
