package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// RedisStorage implements Storage on a single Redis keyspace per
// batch: one hash for batch metadata, one hash for job rows keyed by
// position, and a sorted set of batch ids ordered by creation time for
// listing.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStorageConfig mirrors cache.RedisConfig's shape for this
// backend's own connection needs.
type RedisStorageConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// recomputeCounterScript recomputes completed_jobs/failed_jobs as a
// COUNT over the job hash fields rather than HINCRBY, so a redelivered
// queue message processed twice never double-counts.
var recomputeCounterScript = redis.NewScript(`
local jobs_key = KEYS[1]
local batch_key = KEYS[2]
local status = ARGV[1]
local counter_field = ARGV[2]

local all = redis.call('HGETALL', jobs_key)
local count = 0
for i = 1, #all, 2 do
	local job_json = all[i+1]
	if string.find(job_json, '"status":"' .. status .. '"') then
		count = count + 1
	end
end

redis.call('HSET', batch_key, counter_field, count)
return count
`)

func NewRedisStorage(cfg *RedisStorageConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStorage{client: client, prefix: cfg.Prefix, ttl: ttl}, nil
}

func (rs *RedisStorage) batchKey(id string) string { return rs.prefix + "batch:" + id }
func (rs *RedisStorage) jobsKey(id string) string  { return rs.prefix + "jobs:" + id }
func (rs *RedisStorage) indexKey() string          { return rs.prefix + "index" }

func (rs *RedisStorage) CreateBatch(ctx context.Context, b *batchjob.Batch) (string, error) {
	pipe := rs.client.TxPipeline()

	meta := rs.batchMeta(b)
	pipe.HSet(ctx, rs.batchKey(b.ID), meta)
	pipe.Expire(ctx, rs.batchKey(b.ID), rs.ttl)

	if len(b.Jobs) > 0 {
		jobFields := make(map[string]interface{}, len(b.Jobs))
		for _, j := range b.Jobs {
			data, _ := json.Marshal(j)
			jobFields[strconv.Itoa(j.Position)] = data
		}
		pipe.HSet(ctx, rs.jobsKey(b.ID), jobFields)
		pipe.Expire(ctx, rs.jobsKey(b.ID), rs.ttl)
	}

	pipe.ZAdd(ctx, rs.indexKey(), redis.Z{Score: float64(b.Created.Unix()), Member: b.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	return b.ID, nil
}

func (rs *RedisStorage) batchMeta(b *batchjob.Batch) map[string]interface{} {
	ctxBytes, _ := json.Marshal(b.Context)
	optBytes, _ := json.Marshal(b.Options)
	completedAt := ""
	if b.CompletedAt != nil {
		completedAt = strconv.FormatInt(b.CompletedAt.Unix(), 10)
	}
	return map[string]interface{}{
		"id":             b.ID,
		"type":           string(b.Type),
		"status":         string(b.Status),
		"total_jobs":     b.TotalJobs,
		"completed_jobs": b.CompletedJobs,
		"failed_jobs":    b.FailedJobs,
		"context":        ctxBytes,
		"options":        optBytes,
		"queue_name":     b.QueueName,
		"queue_config":   b.QueueConfig,
		"created_at":     b.Created.Unix(),
		"modified_at":    b.Modified.Unix(),
		"completed_at":   completedAt,
	}
}

func (rs *RedisStorage) UpdateBatch(ctx context.Context, id string, fields map[string]interface{}) error {
	exists, err := rs.client.Exists(ctx, rs.batchKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return errors.BatchNotFoundErr(id)
	}

	redisFields := map[string]interface{}{"modified_at": time.Now().Unix()}
	for k, v := range fields {
		switch k {
		case "status":
			redisFields["status"] = string(v.(batchjob.BatchStatus))
		case "context", "options":
			data, _ := json.Marshal(v)
			redisFields[k] = data
		case "total_jobs", "completed_jobs", "failed_jobs":
			redisFields[k] = v
		case "queue_name", "queue_config":
			redisFields[k] = v
		case "completed_at":
			redisFields["completed_at"] = strconv.FormatInt(v.(time.Time).Unix(), 10)
		}
	}
	return rs.client.HSet(ctx, rs.batchKey(id), redisFields).Err()
}

func (rs *RedisStorage) GetBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	meta, err := rs.client.HGetAll(ctx, rs.batchKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, errors.BatchNotFoundErr(id)
	}

	b, err := parseBatchMeta(meta)
	if err != nil {
		return nil, err
	}

	jobs, err := rs.GetAllJobs(ctx, id, JobFilter{})
	if err != nil {
		return nil, err
	}
	b.Jobs = jobs
	return b, nil
}

func parseBatchMeta(meta map[string]string) (*batchjob.Batch, error) {
	var b batchjob.Batch
	b.ID = meta["id"]
	b.Type = batchjob.BatchType(meta["type"])
	b.Status = batchjob.BatchStatus(meta["status"])
	b.TotalJobs, _ = strconv.Atoi(meta["total_jobs"])
	b.CompletedJobs, _ = strconv.Atoi(meta["completed_jobs"])
	b.FailedJobs, _ = strconv.Atoi(meta["failed_jobs"])
	b.QueueName = meta["queue_name"]
	b.QueueConfig = meta["queue_config"]

	json.Unmarshal([]byte(meta["context"]), &b.Context)
	json.Unmarshal([]byte(meta["options"]), &b.Options)

	if createdUnix, err := strconv.ParseInt(meta["created_at"], 10, 64); err == nil {
		b.Created = time.Unix(createdUnix, 0)
	}
	if modifiedUnix, err := strconv.ParseInt(meta["modified_at"], 10, 64); err == nil {
		b.Modified = time.Unix(modifiedUnix, 0)
	}
	if completedUnix, err := strconv.ParseInt(meta["completed_at"], 10, 64); err == nil {
		t := time.Unix(completedUnix, 0)
		b.CompletedAt = &t
	}
	return &b, nil
}

func (rs *RedisStorage) AddJobsToBatch(ctx context.Context, id string, jobs []*batchjob.JobDefinition) (int, error) {
	meta, err := rs.client.HGetAll(ctx, rs.batchKey(id)).Result()
	if err != nil {
		return 0, err
	}
	if len(meta) == 0 {
		return 0, errors.BatchNotFoundErr(id)
	}
	if batchjob.BatchStatus(meta["status"]).IsTerminal() {
		return 0, errors.BatchClosedErr(id)
	}
	total, _ := strconv.Atoi(meta["total_jobs"])

	pipe := rs.client.TxPipeline()
	jobFields := make(map[string]interface{}, len(jobs))
	for i, j := range jobs {
		j.Position = total + i
		data, _ := json.Marshal(j)
		jobFields[strconv.Itoa(j.Position)] = data
	}
	pipe.HSet(ctx, rs.jobsKey(id), jobFields)
	pipe.HSet(ctx, rs.batchKey(id), "total_jobs", total+len(jobs), "modified_at", time.Now().Unix())
	pipe.Expire(ctx, rs.jobsKey(id), rs.ttl)
	pipe.Expire(ctx, rs.batchKey(id), rs.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (rs *RedisStorage) GetJobByPosition(ctx context.Context, batchID string, position int) (*batchjob.JobDefinition, error) {
	data, err := rs.client.HGet(ctx, rs.jobsKey(batchID), strconv.Itoa(position)).Result()
	if err == redis.Nil {
		return nil, errors.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var j batchjob.JobDefinition
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (rs *RedisStorage) GetJobByID(ctx context.Context, batchID, jobID string) (*batchjob.JobDefinition, error) {
	jobs, err := rs.GetAllJobs(ctx, batchID, JobFilter{})
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.ID == jobID {
			return j, nil
		}
	}
	return nil, errors.ErrJobNotFound
}

func (rs *RedisStorage) writeJob(ctx context.Context, batchID string, j *batchjob.JobDefinition) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return rs.client.HSet(ctx, rs.jobsKey(batchID), strconv.Itoa(j.Position), data).Err()
}

func (rs *RedisStorage) UpdateJobQueueMessageID(ctx context.Context, batchID string, position int, queueMessageID string) error {
	j, err := rs.GetJobByPosition(ctx, batchID, position)
	if err != nil {
		return err
	}
	j.JobID = queueMessageID
	j.Status = batchjob.JobRunning
	return rs.writeJob(ctx, batchID, j)
}

func (rs *RedisStorage) UpdateJobStatus(ctx context.Context, batchID string, position int, status batchjob.JobStatus, result map[string]interface{}, jobErr *batchjob.JobError) error {
	j, err := rs.GetJobByPosition(ctx, batchID, position)
	if err != nil {
		return err
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
	return rs.writeJob(ctx, batchID, j)
}

func (rs *RedisStorage) IncrementCompletedJob(ctx context.Context, batchID string) (int, error) {
	return rs.recomputeCounter(ctx, batchID, batchjob.JobCompleted, "completed_jobs")
}

func (rs *RedisStorage) IncrementFailedJob(ctx context.Context, batchID string) (int, error) {
	return rs.recomputeCounter(ctx, batchID, batchjob.JobFailed, "failed_jobs")
}

func (rs *RedisStorage) recomputeCounter(ctx context.Context, batchID string, status batchjob.JobStatus, field string) (int, error) {
	res, err := recomputeCounterScript.Run(ctx, rs.client,
		[]string{rs.jobsKey(batchID), rs.batchKey(batchID)},
		string(status), field,
	).Result()
	if err != nil {
		return 0, err
	}
	count, _ := res.(int64)
	return int(count), nil
}

func (rs *RedisStorage) GetBatchResults(ctx context.Context, batchID string) (map[string]map[string]interface{}, error) {
	jobs, err := rs.GetAllJobs(ctx, batchID, JobFilter{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]interface{})
	for _, j := range jobs {
		if j.Result != nil {
			out[j.ID] = j.Result
		}
	}
	return out, nil
}

func (rs *RedisStorage) GetAllJobs(ctx context.Context, batchID string, filter JobFilter) ([]*batchjob.JobDefinition, error) {
	raw, err := rs.client.HGetAll(ctx, rs.jobsKey(batchID)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*batchjob.JobDefinition, 0, len(raw))
	for _, data := range raw {
		var j batchjob.JobDefinition
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		jobs = append(jobs, &j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Position < jobs[k].Position })
	return jobs, nil
}

func (rs *RedisStorage) GetBatches(ctx context.Context, filter BatchFilter, limit, offset int) ([]*batchjob.Batch, error) {
	ids, err := rs.client.ZRevRange(ctx, rs.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	matches := make([]*batchjob.Batch, 0)
	for _, id := range ids {
		meta, err := rs.client.HGetAll(ctx, rs.batchKey(id)).Result()
		if err != nil || len(meta) == 0 {
			continue
		}
		b, err := parseBatchMeta(meta)
		if err != nil {
			continue
		}
		if !matchesBatchFilter(b, filter, rs, ctx) {
			continue
		}
		matches = append(matches, b)
	}

	if offset >= len(matches) {
		return []*batchjob.Batch{}, nil
	}
	end := len(matches)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matches[offset:end], nil
}

func matchesBatchFilter(b *batchjob.Batch, filter BatchFilter, rs *RedisStorage, ctx context.Context) bool {
	if filter.Type != "" && b.Type != filter.Type {
		return false
	}
	if filter.Status != "" && b.Status != filter.Status {
		return false
	}
	if filter.CreatedBefore != nil && !b.Created.Before(*filter.CreatedBefore) {
		return false
	}
	if filter.CreatedAfter != nil && !b.Created.After(*filter.CreatedAfter) {
		return false
	}
	if filter.HasCompensation != nil {
		jobs, err := rs.GetAllJobs(ctx, b.ID, JobFilter{})
		if err != nil {
			return false
		}
		has := false
		for _, j := range jobs {
			if j.HasCompensation() {
				has = true
				break
			}
		}
		if has != *filter.HasCompensation {
			return false
		}
	}
	return true
}

func (rs *RedisStorage) CountBatches(ctx context.Context, filter BatchFilter) (int, error) {
	batches, err := rs.GetBatches(ctx, filter, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(batches), nil
}

func (rs *RedisStorage) DeleteBatch(ctx context.Context, batchID string) error {
	exists, err := rs.client.Exists(ctx, rs.batchKey(batchID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return errors.BatchNotFoundErr(batchID)
	}
	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, rs.batchKey(batchID))
	pipe.Del(ctx, rs.jobsKey(batchID))
	pipe.ZRem(ctx, rs.indexKey(), batchID)
	_, err = pipe.Exec(ctx)
	return err
}

func (rs *RedisStorage) CleanupOldBatches(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	ids, err := rs.client.ZRangeByScore(ctx, rs.indexKey(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		meta, err := rs.client.HGetAll(ctx, rs.batchKey(id)).Result()
		if err != nil || len(meta) == 0 {
			continue
		}
		status := batchjob.BatchStatus(meta["status"])
		if !status.IsTerminal() {
			continue
		}
		completedUnix, err := strconv.ParseInt(meta["completed_at"], 10, 64)
		if err != nil || !time.Unix(completedUnix, 0).Before(cutoff) {
			continue
		}
		if err := rs.DeleteBatch(ctx, id); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (rs *RedisStorage) HealthCheck(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
