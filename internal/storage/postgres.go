package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// PostgresStorage implements Storage on top of PostgreSQL. Jobs and
// batches each get their own table, joined on batch_id, with
// completed_jobs/failed_jobs recomputed from a COUNT(*) in a
// transaction of their own, separate from the job status write.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage opens a pooled Postgres connection and ensures
// the schema exists.
func NewPostgresStorage(connStr string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ps := &PostgresStorage{db: db}
	if err := ps.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStorage) Close() error { return ps.db.Close() }

func (ps *PostgresStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		total_jobs INTEGER NOT NULL DEFAULT 0,
		completed_jobs INTEGER NOT NULL DEFAULT 0,
		failed_jobs INTEGER NOT NULL DEFAULT 0,
		context JSONB,
		options JSONB,
		queue_name TEXT,
		queue_config TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		modified_at TIMESTAMP NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
	CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at);

	CREATE TABLE IF NOT EXISTS batch_jobs (
		batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		job_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		class TEXT NOT NULL,
		compensation TEXT,
		args JSONB,
		status TEXT NOT NULL,
		result JSONB,
		error JSONB,
		queue_message_id TEXT,
		completed_at TIMESTAMP,
		PRIMARY KEY (batch_id, job_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_batch_jobs_position ON batch_jobs(batch_id, position);
	CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(batch_id, status);
	`
	_, err := ps.db.Exec(schema)
	return err
}

func (ps *PostgresStorage) CreateBatch(ctx context.Context, b *batchjob.Batch) (string, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, type, status, total_jobs, completed_jobs, failed_jobs,
			context, options, queue_name, queue_config, created_at, modified_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
	`, b.ID, b.Type, b.Status, b.TotalJobs, b.CompletedJobs, b.FailedJobs,
		toJSONB(b.Context), toJSONB(b.Options), b.QueueName, b.QueueConfig, b.Created)
	if err != nil {
		return "", err
	}

	for _, j := range b.Jobs {
		if err := insertJob(ctx, tx, b.ID, j); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return b.ID, nil
}

func insertJob(ctx context.Context, tx *sql.Tx, batchID string, j *batchjob.JobDefinition) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO batch_jobs (batch_id, job_id, position, class, compensation, args, status, result, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, batchID, j.ID, j.Position, j.Class, j.Compensation, toJSONB(j.Args), j.Status,
		toJSONB(j.Result), toJSONB(j.Error))
	return err
}

func (ps *PostgresStorage) UpdateBatch(ctx context.Context, id string, fields map[string]interface{}) error {
	sets := []string{"modified_at = $1"}
	args := []interface{}{time.Now()}
	i := 2
	for k, v := range fields {
		col, val := batchFieldColumn(k, v)
		if col == "" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE batches SET %s WHERE id = $%d", strings.Join(sets, ", "), i)
	res, err := ps.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.BatchNotFoundErr(id)
	}
	return nil
}

func batchFieldColumn(k string, v interface{}) (string, interface{}) {
	switch k {
	case "status":
		return "status", v
	case "context":
		return "context", toJSONB(v)
	case "options":
		return "options", toJSONB(v)
	case "total_jobs":
		return "total_jobs", v
	case "completed_jobs":
		return "completed_jobs", v
	case "failed_jobs":
		return "failed_jobs", v
	case "queue_name":
		return "queue_name", v
	case "queue_config":
		return "queue_config", v
	case "completed_at":
		return "completed_at", v
	}
	return "", nil
}

func (ps *PostgresStorage) GetBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	b, err := ps.scanBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := ps.loadJobs(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Jobs = jobs
	return b, nil
}

func (ps *PostgresStorage) scanBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	row := ps.db.QueryRowContext(ctx, `
		SELECT id, type, status, total_jobs, completed_jobs, failed_jobs, context, options,
			queue_name, queue_config, created_at, modified_at, completed_at
		FROM batches WHERE id = $1
	`, id)

	var b batchjob.Batch
	var ctxBytes, optBytes []byte
	var queueName, queueConfig sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&b.ID, &b.Type, &b.Status, &b.TotalJobs, &b.CompletedJobs, &b.FailedJobs,
		&ctxBytes, &optBytes, &queueName, &queueConfig, &b.Created, &b.Modified, &completedAt)
	if err == sql.ErrNoRows {
		return nil, errors.BatchNotFoundErr(id)
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal(ctxBytes, &b.Context)
	json.Unmarshal(optBytes, &b.Options)
	b.QueueName = queueName.String
	b.QueueConfig = queueConfig.String
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}

func (ps *PostgresStorage) loadJobs(ctx context.Context, batchID string) ([]*batchjob.JobDefinition, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at
		FROM batch_jobs WHERE batch_id = $1 ORDER BY position
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*batchjob.JobDefinition, 0)
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(rows rowScanner) (*batchjob.JobDefinition, error) {
	var j batchjob.JobDefinition
	var compensation, queueMessageID sql.NullString
	var argsBytes, resultBytes, errBytes []byte
	var completedAt sql.NullTime

	err := rows.Scan(&j.ID, &j.Position, &j.Class, &compensation, &argsBytes, &j.Status,
		&resultBytes, &errBytes, &queueMessageID, &completedAt)
	if err != nil {
		return nil, err
	}

	j.Compensation = compensation.String
	j.JobID = queueMessageID.String
	json.Unmarshal(argsBytes, &j.Args)
	if len(resultBytes) > 0 {
		json.Unmarshal(resultBytes, &j.Result)
	}
	if len(errBytes) > 0 && string(errBytes) != "null" {
		j.Error = &batchjob.JobError{}
		json.Unmarshal(errBytes, j.Error)
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}

func (ps *PostgresStorage) AddJobsToBatch(ctx context.Context, id string, jobs []*batchjob.JobDefinition) (int, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var status string
	var total int
	err = tx.QueryRowContext(ctx, "SELECT status, total_jobs FROM batches WHERE id = $1 FOR UPDATE", id).Scan(&status, &total)
	if err == sql.ErrNoRows {
		return 0, errors.BatchNotFoundErr(id)
	}
	if err != nil {
		return 0, err
	}
	if batchjob.BatchStatus(status).IsTerminal() {
		return 0, errors.BatchClosedErr(id)
	}

	for i, j := range jobs {
		j.Position = total + i
		if err := insertJob(ctx, tx, id, j); err != nil {
			return 0, err
		}
	}

	_, err = tx.ExecContext(ctx, "UPDATE batches SET total_jobs = $1, modified_at = $2 WHERE id = $3",
		total+len(jobs), time.Now(), id)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (ps *PostgresStorage) GetJobByPosition(ctx context.Context, batchID string, position int) (*batchjob.JobDefinition, error) {
	row := ps.db.QueryRowContext(ctx, `
		SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at
		FROM batch_jobs WHERE batch_id = $1 AND position = $2
	`, batchID, position)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrJobNotFound
	}
	return j, err
}

func (ps *PostgresStorage) GetJobByID(ctx context.Context, batchID, jobID string) (*batchjob.JobDefinition, error) {
	row := ps.db.QueryRowContext(ctx, `
		SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at
		FROM batch_jobs WHERE batch_id = $1 AND job_id = $2
	`, batchID, jobID)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrJobNotFound
	}
	return j, err
}

func (ps *PostgresStorage) UpdateJobQueueMessageID(ctx context.Context, batchID string, position int, queueMessageID string) error {
	res, err := ps.db.ExecContext(ctx, `
		UPDATE batch_jobs SET queue_message_id = $1, status = $2
		WHERE batch_id = $3 AND position = $4
	`, queueMessageID, batchjob.JobRunning, batchID, position)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

func (ps *PostgresStorage) UpdateJobStatus(ctx context.Context, batchID string, position int, status batchjob.JobStatus, result map[string]interface{}, jobErr *batchjob.JobError) error {
	var completedAt *time.Time
	if status == batchjob.JobCompleted || status == batchjob.JobFailed {
		now := time.Now()
		completedAt = &now
	}
	var resultJSON, errJSON interface{}
	if result != nil {
		resultJSON = toJSONB(result)
	}
	if jobErr != nil {
		errJSON = toJSONB(jobErr)
	}

	res, err := ps.db.ExecContext(ctx, `
		UPDATE batch_jobs SET status = $1, result = COALESCE($2, result), error = COALESCE($3, error),
			completed_at = COALESCE($4, completed_at)
		WHERE batch_id = $5 AND position = $6
	`, status, resultJSON, errJSON, completedAt, batchID, position)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

func (ps *PostgresStorage) IncrementCompletedJob(ctx context.Context, batchID string) (int, error) {
	return ps.recomputeCounter(ctx, batchID, batchjob.JobCompleted, "completed_jobs")
}

func (ps *PostgresStorage) IncrementFailedJob(ctx context.Context, batchID string) (int, error) {
	return ps.recomputeCounter(ctx, batchID, batchjob.JobFailed, "failed_jobs")
}

// recomputeCounter recomputes a batch counter as COUNT(status = s) inside
// a transaction, rather than blindly incrementing, so redelivered queue
// messages never double-count.
func (ps *PostgresStorage) recomputeCounter(ctx context.Context, batchID string, status batchjob.JobStatus, column string) (int, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_jobs WHERE batch_id = $1 AND status = $2", batchID, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("UPDATE batches SET %s = $1, modified_at = $2 WHERE id = $3", column)
	if _, err := tx.ExecContext(ctx, query, count, time.Now(), batchID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (ps *PostgresStorage) GetBatchResults(ctx context.Context, batchID string) (map[string]map[string]interface{}, error) {
	rows, err := ps.db.QueryContext(ctx, "SELECT job_id, result FROM batch_jobs WHERE batch_id = $1 AND result IS NOT NULL", batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]interface{})
	for rows.Next() {
		var jobID string
		var resultBytes []byte
		if err := rows.Scan(&jobID, &resultBytes); err != nil {
			return nil, err
		}
		var result map[string]interface{}
		json.Unmarshal(resultBytes, &result)
		out[jobID] = result
	}
	return out, nil
}

func (ps *PostgresStorage) GetAllJobs(ctx context.Context, batchID string, filter JobFilter) ([]*batchjob.JobDefinition, error) {
	query := "SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at FROM batch_jobs WHERE batch_id = $1"
	args := []interface{}{batchID}
	if filter.Status != "" {
		query += " AND status = $2"
		args = append(args, filter.Status)
	}
	query += " ORDER BY position"

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*batchjob.JobDefinition, 0)
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (ps *PostgresStorage) GetBatches(ctx context.Context, filter BatchFilter, limit, offset int) ([]*batchjob.Batch, error) {
	where, args := buildBatchFilter(filter)
	query := fmt.Sprintf(`
		SELECT id, type, status, total_jobs, completed_jobs, failed_jobs, context, options,
			queue_name, queue_config, created_at, modified_at, completed_at
		FROM batches %s ORDER BY created_at DESC LIMIT %d OFFSET %d
	`, where, limit, offset)

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]*batchjob.Batch, 0)
	for rows.Next() {
		var b batchjob.Batch
		var ctxBytes, optBytes []byte
		var queueName, queueConfig sql.NullString
		var completedAt sql.NullTime
		err := rows.Scan(&b.ID, &b.Type, &b.Status, &b.TotalJobs, &b.CompletedJobs, &b.FailedJobs,
			&ctxBytes, &optBytes, &queueName, &queueConfig, &b.Created, &b.Modified, &completedAt)
		if err != nil {
			return nil, err
		}
		json.Unmarshal(ctxBytes, &b.Context)
		json.Unmarshal(optBytes, &b.Options)
		b.QueueName = queueName.String
		b.QueueConfig = queueConfig.String
		if completedAt.Valid {
			b.CompletedAt = &completedAt.Time
		}
		batches = append(batches, &b)
	}
	return batches, nil
}

func (ps *PostgresStorage) CountBatches(ctx context.Context, filter BatchFilter) (int, error) {
	where, args := buildBatchFilter(filter)
	query := "SELECT COUNT(*) FROM batches " + where
	var count int
	err := ps.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func buildBatchFilter(filter BatchFilter) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}
	i := 1
	if filter.Type != "" {
		clauses = append(clauses, fmt.Sprintf("type = $%d", i))
		args = append(args, filter.Type)
		i++
	}
	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", i))
		args = append(args, filter.Status)
		i++
	}
	if filter.HasCompensation != nil {
		if *filter.HasCompensation {
			clauses = append(clauses, "EXISTS (SELECT 1 FROM batch_jobs bj WHERE bj.batch_id = batches.id AND bj.compensation <> '')")
		} else {
			clauses = append(clauses, "NOT EXISTS (SELECT 1 FROM batch_jobs bj WHERE bj.batch_id = batches.id AND bj.compensation <> '')")
		}
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", i))
		args = append(args, *filter.CreatedBefore)
		i++
	}
	if filter.CreatedAfter != nil {
		clauses = append(clauses, fmt.Sprintf("created_at > $%d", i))
		args = append(args, *filter.CreatedAfter)
		i++
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (ps *PostgresStorage) DeleteBatch(ctx context.Context, batchID string) error {
	res, err := ps.db.ExecContext(ctx, "DELETE FROM batches WHERE id = $1", batchID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.BatchNotFoundErr(batchID)
	}
	return nil
}

func (ps *PostgresStorage) CleanupOldBatches(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := ps.db.ExecContext(ctx, `
		DELETE FROM batches WHERE status IN ($1, $2) AND completed_at < $3
	`, batchjob.BatchCompleted, batchjob.BatchFailed, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (ps *PostgresStorage) HealthCheck(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

func toJSONB(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}

