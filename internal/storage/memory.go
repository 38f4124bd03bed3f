package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// MemoryStorage is an in-process Storage implementation. It is not one
// of the two backends operators choose between in production, but it
// gives the core a zero-dependency option for tests and satisfies the
// exact same behavioral contract.
type MemoryStorage struct {
	mu      sync.Mutex
	batches map[string]*batchjob.Batch
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{batches: make(map[string]*batchjob.Batch)}
}

func cloneBatch(b *batchjob.Batch) *batchjob.Batch {
	cp := *b
	cp.Jobs = make([]*batchjob.JobDefinition, len(b.Jobs))
	for i, j := range b.Jobs {
		jcp := *j
		cp.Jobs[i] = &jcp
	}
	ctxCopy := make(map[string]interface{}, len(b.Context))
	for k, v := range b.Context {
		ctxCopy[k] = v
	}
	cp.Context = ctxCopy
	return &cp
}

func (m *MemoryStorage) CreateBatch(ctx context.Context, b *batchjob.Batch) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = cloneBatch(b)
	return b.ID, nil
}

func (m *MemoryStorage) UpdateBatch(ctx context.Context, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return errors.BatchNotFoundErr(id)
	}
	applyBatchFields(b, fields)
	b.Modified = time.Now()
	return nil
}

func applyBatchFields(b *batchjob.Batch, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "status":
			b.Status = v.(batchjob.BatchStatus)
		case "context":
			b.Context = v.(map[string]interface{})
		case "options":
			b.Options = v.(batchjob.Options)
		case "total_jobs":
			b.TotalJobs = v.(int)
		case "completed_jobs":
			b.CompletedJobs = v.(int)
		case "failed_jobs":
			b.FailedJobs = v.(int)
		case "queue_name":
			b.QueueName = v.(string)
		case "queue_config":
			b.QueueConfig = v.(string)
		case "completed_at":
			t := v.(time.Time)
			b.CompletedAt = &t
		}
	}
}

func (m *MemoryStorage) GetBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, errors.BatchNotFoundErr(id)
	}
	return cloneBatch(b), nil
}

func (m *MemoryStorage) AddJobsToBatch(ctx context.Context, id string, jobs []*batchjob.JobDefinition) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return 0, errors.BatchNotFoundErr(id)
	}
	if b.Status.IsTerminal() {
		return 0, errors.BatchClosedErr(id)
	}
	start := b.TotalJobs
	for i, j := range jobs {
		j.Position = start + i
		b.Jobs = append(b.Jobs, j)
	}
	b.TotalJobs += len(jobs)
	b.Modified = time.Now()
	return len(jobs), nil
}

func (m *MemoryStorage) GetJobByPosition(ctx context.Context, batchID string, position int) (*batchjob.JobDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, errors.BatchNotFoundErr(batchID)
	}
	j := b.GetJobByPosition(position)
	if j == nil {
		return nil, errors.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStorage) GetJobByID(ctx context.Context, batchID, jobID string) (*batchjob.JobDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, errors.BatchNotFoundErr(batchID)
	}
	j := b.GetJob(jobID)
	if j == nil {
		return nil, errors.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStorage) UpdateJobQueueMessageID(ctx context.Context, batchID string, position int, queueMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return errors.BatchNotFoundErr(batchID)
	}
	j := b.GetJobByPosition(position)
	if j == nil {
		return errors.ErrJobNotFound
	}
	j.JobID = queueMessageID
	j.Status = batchjob.JobRunning
	return nil
}

func (m *MemoryStorage) UpdateJobStatus(ctx context.Context, batchID string, position int, status batchjob.JobStatus, result map[string]interface{}, jobErr *batchjob.JobError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return errors.BatchNotFoundErr(batchID)
	}
	j := b.GetJobByPosition(position)
	if j == nil {
		return errors.ErrJobNotFound
	}
	j.Status = status
	if result != nil {
		j.Result = result
	}
	if jobErr != nil {
		j.Error = jobErr
	}
	if status == batchjob.JobCompleted || status == batchjob.JobFailed {
		now := time.Now()
		j.CompletedAt = &now
	}
	return nil
}

func (m *MemoryStorage) IncrementCompletedJob(ctx context.Context, batchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return 0, errors.BatchNotFoundErr(batchID)
	}
	count := 0
	for _, j := range b.Jobs {
		if j.Status == batchjob.JobCompleted {
			count++
		}
	}
	b.CompletedJobs = count
	return count, nil
}

func (m *MemoryStorage) IncrementFailedJob(ctx context.Context, batchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return 0, errors.BatchNotFoundErr(batchID)
	}
	count := 0
	for _, j := range b.Jobs {
		if j.Status == batchjob.JobFailed {
			count++
		}
	}
	b.FailedJobs = count
	return count, nil
}

func (m *MemoryStorage) GetBatchResults(ctx context.Context, batchID string) (map[string]map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, errors.BatchNotFoundErr(batchID)
	}
	out := make(map[string]map[string]interface{})
	for _, j := range b.Jobs {
		if j.Result != nil {
			out[j.ID] = j.Result
		}
	}
	return out, nil
}

func (m *MemoryStorage) GetAllJobs(ctx context.Context, batchID string, filter JobFilter) ([]*batchjob.JobDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, errors.BatchNotFoundErr(batchID)
	}
	out := make([]*batchjob.JobDefinition, 0, len(b.Jobs))
	for _, j := range b.Jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Position < out[k].Position })
	return out, nil
}

func (m *MemoryStorage) GetBatches(ctx context.Context, filter BatchFilter, limit, offset int) ([]*batchjob.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches := m.filteredBatches(filter)
	sort.Slice(matches, func(i, k int) bool { return matches[i].Created.After(matches[k].Created) })
	if offset >= len(matches) {
		return []*batchjob.Batch{}, nil
	}
	end := len(matches)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*batchjob.Batch, 0, end-offset)
	for _, b := range matches[offset:end] {
		out = append(out, cloneBatch(b))
	}
	return out, nil
}

func (m *MemoryStorage) CountBatches(ctx context.Context, filter BatchFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filteredBatches(filter)), nil
}

func (m *MemoryStorage) filteredBatches(filter BatchFilter) []*batchjob.Batch {
	out := make([]*batchjob.Batch, 0)
	for _, b := range m.batches {
		if filter.Type != "" && b.Type != filter.Type {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.HasCompensation != nil && b.HasCompensation() != *filter.HasCompensation {
			continue
		}
		if filter.CreatedBefore != nil && !b.Created.Before(*filter.CreatedBefore) {
			continue
		}
		if filter.CreatedAfter != nil && !b.Created.After(*filter.CreatedAfter) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (m *MemoryStorage) DeleteBatch(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[batchID]; !ok {
		return errors.BatchNotFoundErr(batchID)
	}
	delete(m.batches, batchID)
	return nil
}

func (m *MemoryStorage) CleanupOldBatches(ctx context.Context, olderThanDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	removed := 0
	for id, b := range m.batches {
		if !b.Status.IsTerminal() {
			continue
		}
		if b.CompletedAt != nil && b.CompletedAt.Before(cutoff) {
			delete(m.batches, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStorage) HealthCheck(ctx context.Context) error { return nil }

func (m *MemoryStorage) Close() error { return nil }
