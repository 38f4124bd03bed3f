// Package transport translates between the orchestrator's message
// envelope and its generic queue.Job carrier,
// and routes envelopes to one queue.Queue instance per resolved queue
// name (internal/queue is a one-instance-per-stream design; see
// RedisQueue/NATSQueue, each configured with a single Stream/Subject).
package transport

import (
	"fmt"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/queue"
)

// Envelope is the wire message dispatched to and read back from the
// external queue for one job delivery.
type Envelope struct {
	BatchID         string                 `json:"batch_id"`
	JobPosition     int                    `json:"job_position"`
	Class           string                 `json:"class"`
	Args            map[string]interface{} `json:"args"`
	Compensation    string                 `json:"compensation,omitempty"`
	IsCallback      bool                   `json:"is_callback,omitempty"`
	IsCompensation  bool                   `json:"is_compensation,omitempty"`
	CompensationRec map[string]interface{} `json:"_compensation,omitempty"`

	// QueueMessageID is the underlying queue.Job's id. It travels
	// alongside the serialized envelope rather than inside it — it
	// isn't known until the job is enqueued and FromJob fills it in
	// from the delivered queue.Job, never from the wire payload.
	QueueMessageID string `json:"-"`
}

// BuildEnvelope merges a job's own args with the batch's shared
// context: args ∪ batch.context ∪ {batch_id, job_position,
// compensation}. Batch fields always win over user-supplied keys of
// the same name.
func BuildEnvelope(b *batchjob.Batch, job *batchjob.JobDefinition) *Envelope {
	merged := make(map[string]interface{}, len(job.Args)+len(b.Context))
	for k, v := range job.Args {
		merged[k] = v
	}
	for k, v := range b.Context {
		merged[k] = v
	}

	return &Envelope{
		BatchID:      b.ID,
		JobPosition:  job.Position,
		Class:        job.Class,
		Args:         merged,
		Compensation: job.Compensation,
	}
}

// ToJob wraps an Envelope into the queue transport's generic Job
// carrier. The envelope travels whole inside Payload["envelope"]
// rather than flattened, so transport.Router never has to reconstruct
// field-by-field on the receive path.
func (e *Envelope) ToJob() *queue.Job {
	j := queue.NewJob(queue.JobTypeBatchJob, map[string]interface{}{
		"envelope": envelopeToPayload(e),
	})
	return j
}

// FromJob extracts the Envelope carried by a dequeued queue.Job.
func FromJob(j *queue.Job) (*Envelope, error) {
	raw, ok := j.Payload["envelope"]
	if !ok {
		return nil, fmt.Errorf("transport: job %s carries no envelope payload", j.ID)
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("transport: job %s envelope payload has unexpected shape %T", j.ID, raw)
	}
	e, err := payloadToEnvelope(m)
	if err != nil {
		return nil, err
	}
	e.QueueMessageID = j.ID
	return e, nil
}

func envelopeToPayload(e *Envelope) map[string]interface{} {
	m := map[string]interface{}{
		"batch_id":     e.BatchID,
		"job_position": e.JobPosition,
		"class":        e.Class,
		"args":         e.Args,
	}
	if e.Compensation != "" {
		m["compensation"] = e.Compensation
	}
	if e.IsCallback {
		m["is_callback"] = true
	}
	if e.IsCompensation {
		m["is_compensation"] = true
	}
	if e.CompensationRec != nil {
		m["_compensation"] = e.CompensationRec
	}
	return m
}

func payloadToEnvelope(m map[string]interface{}) (*Envelope, error) {
	e := &Envelope{Args: map[string]interface{}{}}

	if v, ok := m["batch_id"].(string); ok {
		e.BatchID = v
	} else {
		return nil, fmt.Errorf("transport: envelope missing batch_id")
	}

	switch v := m["job_position"].(type) {
	case int:
		e.JobPosition = v
	case float64:
		e.JobPosition = int(v)
	default:
		return nil, fmt.Errorf("transport: envelope missing job_position")
	}

	if v, ok := m["class"].(string); ok {
		e.Class = v
	} else {
		return nil, fmt.Errorf("transport: envelope missing class")
	}

	if v, ok := m["args"].(map[string]interface{}); ok {
		e.Args = v
	}
	if v, ok := m["compensation"].(string); ok {
		e.Compensation = v
	}
	if v, ok := m["is_callback"].(bool); ok {
		e.IsCallback = v
	}
	if v, ok := m["is_compensation"].(bool); ok {
		e.IsCompensation = v
	}
	if v, ok := m["_compensation"].(map[string]interface{}); ok {
		e.CompensationRec = v
	}

	return e, nil
}
