package batchjob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/pkg/errors"
)

type stubClasses struct{ known map[string]bool }

func (s stubClasses) Has(class string) bool { return s.known[class] }

func TestNormalizeJob_StringShape(t *testing.T) {
	def, err := NormalizeJob("send_email", TypeParallel, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "send_email", def.Class)
	assert.Equal(t, 2, def.Position)
	assert.Equal(t, JobPending, def.Status)
	assert.NotEmpty(t, def.ID)
}

func TestNormalizeJob_TupleShapeRequiresSequential(t *testing.T) {
	_, err := NormalizeJob([]string{"charge", "refund"}, TypeParallel, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompensationOnParallel)

	def, err := NormalizeJob([]string{"charge", "refund"}, TypeSequential, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "charge", def.Class)
	assert.Equal(t, "refund", def.Compensation)
}

func TestNormalizeJob_TupleShapeWrongArity(t *testing.T) {
	_, err := NormalizeJob([]string{"only-one"}, TypeSequential, 0, nil)
	require.Error(t, err)
}

func TestNormalizeJob_MapShape(t *testing.T) {
	raw := map[string]interface{}{
		"class": "charge_card",
		"args":  map[string]interface{}{"amount": 42},
	}
	def, err := NormalizeJob(raw, TypeParallel, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "charge_card", def.Class)
	assert.Equal(t, 42, def.Args["amount"])
}

func TestNormalizeJob_MapShapeMissingClass(t *testing.T) {
	_, err := NormalizeJob(map[string]interface{}{"args": map[string]interface{}{}}, TypeParallel, 0, nil)
	require.Error(t, err)
}

func TestNormalizeJob_MapShapeCompensationOnParallelRejected(t *testing.T) {
	raw := map[string]interface{}{"class": "charge", "compensation": "refund"}
	_, err := NormalizeJob(raw, TypeParallel, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompensationOnParallel)
}

func TestNormalizeJob_JobDefinitionRoundTrip(t *testing.T) {
	original := &JobDefinition{ID: "job-1", Class: "send_email", Status: JobCompleted}
	def, err := NormalizeJob(original, TypeParallel, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "job-1", def.ID)
	assert.Equal(t, 5, def.Position)
}

func TestNormalizeJob_UnsupportedShape(t *testing.T) {
	_, err := NormalizeJob(42, TypeParallel, 0, nil)
	require.Error(t, err)
}

func TestNormalizeJob_RejectsUnknownClass(t *testing.T) {
	classes := stubClasses{known: map[string]bool{"known_class": true}}
	_, err := NormalizeJob("unknown_class", TypeParallel, 0, classes)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownClass)

	_, err = NormalizeJob("known_class", TypeParallel, 0, classes)
	require.NoError(t, err)
}

func TestOptions_ValidateRejectsNegativeRetryDelay(t *testing.T) {
	opts := &Options{RetryDelay: -time.Second}
	err := opts.Validate()
	require.Error(t, err)
}

func TestOptions_ValidateRejectsOversizedMaxRetries(t *testing.T) {
	opts := &Options{MaxRetries: 101}
	err := opts.Validate()
	require.Error(t, err)
}

func TestOptions_ValidateAcceptsZeroValue(t *testing.T) {
	opts := &Options{}
	assert.NoError(t, opts.Validate())
}

func TestBatchStatus_IsTerminal(t *testing.T) {
	assert.True(t, BatchCompleted.IsTerminal())
	assert.True(t, BatchFailed.IsTerminal())
	assert.False(t, BatchRunning.IsTerminal())
	assert.False(t, BatchCancelling.IsTerminal())
}

func TestNewBatch_AssignsPositionsAndCounts(t *testing.T) {
	jobs := []*JobDefinition{{Class: "a"}, {Class: "b"}, {Class: "c"}}
	b := NewBatch(TypeParallel, jobs)

	assert.Equal(t, 3, b.TotalJobs)
	assert.Equal(t, 0, b.Jobs[0].Position)
	assert.Equal(t, 2, b.Jobs[2].Position)
	assert.Equal(t, BatchPending, b.Status)
	assert.NotEmpty(t, b.ID)
}

func TestBatch_GetJobsWithCompensation(t *testing.T) {
	b := NewBatch(TypeSequential, []*JobDefinition{
		{Class: "charge", Compensation: "refund", Status: JobCompleted},
		{Class: "ship", Status: JobPending},
		{Class: "notify", Compensation: "retract", Status: JobFailed},
	})

	comp := b.GetJobsWithCompensation()
	require.Len(t, comp, 1)
	assert.Equal(t, "charge", comp[0].Class)
}

func TestBatch_GetNextSequentialJob(t *testing.T) {
	b := NewBatch(TypeSequential, []*JobDefinition{{Class: "a"}, {Class: "b"}})

	next := b.GetNextSequentialJob(0)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.Class)

	assert.Nil(t, b.GetNextSequentialJob(1))
}
