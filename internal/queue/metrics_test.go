package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewQueueMetrics_DefaultsMinProcessTimeToAnHour(t *testing.T) {
	qm := NewQueueMetrics()
	assert.Equal(t, time.Hour, qm.MinProcessTime)
	assert.Equal(t, time.Duration(0), qm.MaxProcessTime)
}

func TestRecordEnqueue_IncrementsTotalsByTypeAndPriority(t *testing.T) {
	qm := NewQueueMetrics()
	job := NewJob(JobTypeBatchJob, nil)
	job.SetPriority(PriorityHigh)

	qm.RecordEnqueue(job)

	assert.Equal(t, int64(1), qm.TotalEnqueued)
	assert.Equal(t, int64(1), qm.ByType[JobTypeBatchJob].Enqueued)
	assert.Equal(t, int64(1), qm.ByPriority[PriorityHigh].Enqueued)
}

func TestRecordDequeue_IncrementsTotalDequeued(t *testing.T) {
	qm := NewQueueMetrics()
	job := NewJob(JobTypeBatchJob, nil)

	qm.RecordDequeue(job)

	assert.Equal(t, int64(1), qm.TotalDequeued)
}

func TestRecordCompletion_UpdatesByTypeAndByPriorityAndProcessTime(t *testing.T) {
	qm := NewQueueMetrics()
	job := NewJob(JobTypeBatchJob, nil)
	job.SetPriority(PriorityNormal)
	qm.RecordEnqueue(job)

	started := time.Now().Add(-50 * time.Millisecond)
	completed := time.Now()
	job.StartedAt = &started
	job.CompletedAt = &completed

	qm.RecordCompletion(job)

	assert.Equal(t, int64(1), qm.TotalCompleted)
	assert.Equal(t, int64(1), qm.LastHourCompleted)
	assert.Equal(t, int64(1), qm.ByType[JobTypeBatchJob].Completed)
	assert.Equal(t, int64(1), qm.ByPriority[PriorityNormal].Completed)
	assert.True(t, qm.AvgProcessTime > 0)
}

func TestRecordCompletion_WithoutTimestampsSkipsProcessTime(t *testing.T) {
	qm := NewQueueMetrics()
	job := NewJob(JobTypeBatchJob, nil)
	qm.RecordEnqueue(job)

	qm.RecordCompletion(job)

	assert.Equal(t, int64(1), qm.TotalCompleted)
	assert.Empty(t, qm.ProcessTimes)
}

func TestRecordFailure_IncrementsTotalsByTypeAndPriority(t *testing.T) {
	qm := NewQueueMetrics()
	job := NewJob(JobTypeBatchJob, nil)
	job.SetPriority(PriorityLow)
	qm.RecordEnqueue(job)

	qm.RecordFailure(job)

	assert.Equal(t, int64(1), qm.TotalFailed)
	assert.Equal(t, int64(1), qm.LastHourFailed)
	assert.Equal(t, int64(1), qm.ByType[JobTypeBatchJob].Failed)
	assert.Equal(t, int64(1), qm.ByPriority[PriorityLow].Failed)
}

func TestRecordRetry_IncrementsTotalRetried(t *testing.T) {
	qm := NewQueueMetrics()
	qm.RecordRetry(NewJob(JobTypeBatchJob, nil))
	assert.Equal(t, int64(1), qm.TotalRetried)
}

func TestRecordCompletion_TracksMinMaxAndPercentiles(t *testing.T) {
	qm := NewQueueMetrics()

	durations := []time.Duration{10 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		job := NewJob(JobTypeBatchJob, nil)
		started := time.Now().Add(-d)
		completed := started.Add(d)
		job.StartedAt = &started
		job.CompletedAt = &completed
		qm.RecordCompletion(job)
	}

	assert.Equal(t, 10*time.Millisecond, qm.MinProcessTime)
	assert.Equal(t, 100*time.Millisecond, qm.MaxProcessTime)
	assert.True(t, qm.P50ProcessTime > 0)
	assert.True(t, qm.P99ProcessTime >= qm.P50ProcessTime)
}

func TestGetSummary_ComputesSuccessRate(t *testing.T) {
	qm := NewQueueMetrics()
	qm.RecordCompletion(NewJob(JobTypeBatchJob, nil))
	qm.RecordCompletion(NewJob(JobTypeBatchJob, nil))
	qm.RecordFailure(NewJob(JobTypeBatchJob, nil))

	summary := qm.GetSummary()
	assert.Equal(t, int64(2), summary.TotalCompleted)
	assert.Equal(t, int64(1), summary.TotalFailed)
	assert.InDelta(t, 66.66, summary.SuccessRate, 0.1)
}

func TestGetSummary_ZeroActivityReportsZeroSuccessRate(t *testing.T) {
	qm := NewQueueMetrics()
	summary := qm.GetSummary()
	assert.Equal(t, float64(0), summary.SuccessRate)
}

func TestReset_ClearsCountersAndRestoresMinProcessTimeSentinel(t *testing.T) {
	qm := NewQueueMetrics()
	qm.RecordEnqueue(NewJob(JobTypeBatchJob, nil))
	qm.RecordCompletion(NewJob(JobTypeBatchJob, nil))

	qm.Reset()

	assert.Equal(t, int64(0), qm.TotalEnqueued)
	assert.Equal(t, int64(0), qm.TotalCompleted)
	assert.Equal(t, time.Hour, qm.MinProcessTime)
	assert.Equal(t, time.Duration(0), qm.MaxProcessTime)
	assert.Empty(t, qm.ByType)
	assert.Empty(t, qm.ByPriority)
}

func TestResetHourlyCounters_ClearsOnlyHourlyFields(t *testing.T) {
	qm := NewQueueMetrics()
	qm.RecordCompletion(NewJob(JobTypeBatchJob, nil))
	qm.RecordFailure(NewJob(JobTypeBatchJob, nil))

	qm.ResetHourlyCounters()

	assert.Equal(t, int64(0), qm.LastHourCompleted)
	assert.Equal(t, int64(0), qm.LastHourFailed)
	assert.Equal(t, int64(1), qm.TotalCompleted)
	assert.Equal(t, int64(1), qm.TotalFailed)
}
