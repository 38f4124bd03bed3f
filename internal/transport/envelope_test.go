package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/batchjob"
)

func TestBuildEnvelope_MergesArgsAndContextBatchFieldsWin(t *testing.T) {
	b := batchjob.NewBatch(batchjob.TypeSequential, []*batchjob.JobDefinition{
		{Class: "charge_card", Compensation: "refund", Args: map[string]interface{}{"amount": 10, "batch_id": "user-supplied"}},
	})
	b.Context = map[string]interface{}{"tenant": "acme"}

	env := BuildEnvelope(b, b.Jobs[0])

	assert.Equal(t, b.ID, env.BatchID)
	assert.Equal(t, "charge_card", env.Class)
	assert.Equal(t, "refund", env.Compensation)
	assert.Equal(t, "acme", env.Args["tenant"])
	assert.Equal(t, 10, env.Args["amount"])
}

func TestEnvelope_ToJobThenFromJobRoundTrips(t *testing.T) {
	env := &Envelope{
		BatchID:        "batch-1",
		JobPosition:    3,
		Class:          "send_email",
		Args:           map[string]interface{}{"to": "a@example.com"},
		Compensation:   "retract_email",
		IsCallback:     true,
		IsCompensation: false,
	}

	job := env.ToJob()
	got, err := FromJob(job)
	require.NoError(t, err)

	assert.Equal(t, env.BatchID, got.BatchID)
	assert.Equal(t, env.JobPosition, got.JobPosition)
	assert.Equal(t, env.Class, got.Class)
	assert.Equal(t, env.Compensation, got.Compensation)
	assert.True(t, got.IsCallback)
	assert.Equal(t, "a@example.com", got.Args["to"])
	assert.Equal(t, job.ID, got.QueueMessageID)
	assert.NotEmpty(t, got.QueueMessageID)
}

func TestFromJob_MissingEnvelopePayloadErrors(t *testing.T) {
	job := (&Envelope{BatchID: "x"}).ToJob()
	job.Payload = map[string]interface{}{}

	_, err := FromJob(job)
	require.Error(t, err)
}

func TestFromJob_MissingBatchIDErrors(t *testing.T) {
	env := &Envelope{Class: "a"}
	job := env.ToJob()
	payload := job.Payload["envelope"].(map[string]interface{})
	delete(payload, "batch_id")

	_, err := FromJob(job)
	require.Error(t, err)
}
