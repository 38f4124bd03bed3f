package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// SQLiteStorage implements Storage on top of SQLite. Schema mirrors
// PostgresStorage; placeholders are positional ? rather than $n and
// JSON columns are plain TEXT.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens a single-writer SQLite connection with WAL
// journaling and ensures the schema exists.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ss := &SQLiteStorage{db: db}
	if err := ss.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return ss, nil
}

func (ss *SQLiteStorage) Close() error { return ss.db.Close() }

func (ss *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		total_jobs INTEGER NOT NULL DEFAULT 0,
		completed_jobs INTEGER NOT NULL DEFAULT 0,
		failed_jobs INTEGER NOT NULL DEFAULT 0,
		context TEXT,
		options TEXT,
		queue_name TEXT,
		queue_config TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
	CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at);

	CREATE TABLE IF NOT EXISTS batch_jobs (
		batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		job_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		class TEXT NOT NULL,
		compensation TEXT,
		args TEXT,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		queue_message_id TEXT,
		completed_at DATETIME,
		PRIMARY KEY (batch_id, job_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_batch_jobs_position ON batch_jobs(batch_id, position);
	CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(batch_id, status);
	`
	_, err := ss.db.Exec(schema)
	return err
}

func (ss *SQLiteStorage) CreateBatch(ctx context.Context, b *batchjob.Batch) (string, error) {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, type, status, total_jobs, completed_jobs, failed_jobs,
			context, options, queue_name, queue_config, created_at, modified_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, b.ID, b.Type, b.Status, b.TotalJobs, b.CompletedJobs, b.FailedJobs,
		toJSONB(b.Context), toJSONB(b.Options), b.QueueName, b.QueueConfig, b.Created, b.Created)
	if err != nil {
		return "", err
	}

	for _, j := range b.Jobs {
		if err := insertJobSQLite(ctx, tx, b.ID, j); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return b.ID, nil
}

func insertJobSQLite(ctx context.Context, tx *sql.Tx, batchID string, j *batchjob.JobDefinition) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO batch_jobs (batch_id, job_id, position, class, compensation, args, status, result, error)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, batchID, j.ID, j.Position, j.Class, j.Compensation, toJSONB(j.Args), j.Status,
		toJSONB(j.Result), toJSONB(j.Error))
	return err
}

func (ss *SQLiteStorage) UpdateBatch(ctx context.Context, id string, fields map[string]interface{}) error {
	sets := []string{"modified_at = ?"}
	args := []interface{}{time.Now()}
	for k, v := range fields {
		col, val := batchFieldColumn(k, v)
		if col == "" {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE batches SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := ss.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.BatchNotFoundErr(id)
	}
	return nil
}

func (ss *SQLiteStorage) GetBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	b, err := ss.scanBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := ss.loadJobs(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Jobs = jobs
	return b, nil
}

func (ss *SQLiteStorage) scanBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	row := ss.db.QueryRowContext(ctx, `
		SELECT id, type, status, total_jobs, completed_jobs, failed_jobs, context, options,
			queue_name, queue_config, created_at, modified_at, completed_at
		FROM batches WHERE id = ?
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

func (ss *SQLiteStorage) loadJobs(ctx context.Context, batchID string) ([]*batchjob.JobDefinition, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at
		FROM batch_jobs WHERE batch_id = ? ORDER BY position
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

func (ss *SQLiteStorage) AddJobsToBatch(ctx context.Context, id string, jobs []*batchjob.JobDefinition) (int, error) {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var status string
	var total int
	err = tx.QueryRowContext(ctx, "SELECT status, total_jobs FROM batches WHERE id = ?", id).Scan(&status, &total)
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
		if err := insertJobSQLite(ctx, tx, id, j); err != nil {
			return 0, err
		}
	}

	_, err = tx.ExecContext(ctx, "UPDATE batches SET total_jobs = ?, modified_at = ? WHERE id = ?",
		total+len(jobs), time.Now(), id)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (ss *SQLiteStorage) GetJobByPosition(ctx context.Context, batchID string, position int) (*batchjob.JobDefinition, error) {
	row := ss.db.QueryRowContext(ctx, `
		SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at
		FROM batch_jobs WHERE batch_id = ? AND position = ?
	`, batchID, position)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrJobNotFound
	}
	return j, err
}

func (ss *SQLiteStorage) GetJobByID(ctx context.Context, batchID, jobID string) (*batchjob.JobDefinition, error) {
	row := ss.db.QueryRowContext(ctx, `
		SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at
		FROM batch_jobs WHERE batch_id = ? AND job_id = ?
	`, batchID, jobID)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrJobNotFound
	}
	return j, err
}

func (ss *SQLiteStorage) UpdateJobQueueMessageID(ctx context.Context, batchID string, position int, queueMessageID string) error {
	res, err := ss.db.ExecContext(ctx, `
		UPDATE batch_jobs SET queue_message_id = ?, status = ?
		WHERE batch_id = ? AND position = ?
	`, queueMessageID, batchjob.JobRunning, batchID, position)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

func (ss *SQLiteStorage) UpdateJobStatus(ctx context.Context, batchID string, position int, status batchjob.JobStatus, result map[string]interface{}, jobErr *batchjob.JobError) error {
	var completedAt *time.Time
	if status == batchjob.JobCompleted || status == batchjob.JobFailed {
		now := time.Now()
		completedAt = &now
	}

	existing, err := ss.GetJobByPosition(ctx, batchID, position)
	if err != nil {
		return err
	}
	newResult := existing.Result
	if result != nil {
		newResult = result
	}
	newErr := existing.Error
	if jobErr != nil {
		newErr = jobErr
	}
	newCompletedAt := existing.CompletedAt
	if completedAt != nil {
		newCompletedAt = completedAt
	}

	res, err := ss.db.ExecContext(ctx, `
		UPDATE batch_jobs SET status = ?, result = ?, error = ?, completed_at = ?
		WHERE batch_id = ? AND position = ?
	`, status, toJSONB(newResult), toJSONB(newErr), newCompletedAt, batchID, position)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

func (ss *SQLiteStorage) IncrementCompletedJob(ctx context.Context, batchID string) (int, error) {
	return ss.recomputeCounter(ctx, batchID, batchjob.JobCompleted, "completed_jobs")
}

func (ss *SQLiteStorage) IncrementFailedJob(ctx context.Context, batchID string) (int, error) {
	return ss.recomputeCounter(ctx, batchID, batchjob.JobFailed, "failed_jobs")
}

func (ss *SQLiteStorage) recomputeCounter(ctx context.Context, batchID string, status batchjob.JobStatus, column string) (int, error) {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_jobs WHERE batch_id = ? AND status = ?", batchID, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("UPDATE batches SET %s = ?, modified_at = ? WHERE id = ?", column)
	if _, err := tx.ExecContext(ctx, query, count, time.Now(), batchID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (ss *SQLiteStorage) GetBatchResults(ctx context.Context, batchID string) (map[string]map[string]interface{}, error) {
	rows, err := ss.db.QueryContext(ctx, "SELECT job_id, result FROM batch_jobs WHERE batch_id = ? AND result IS NOT NULL", batchID)
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

func (ss *SQLiteStorage) GetAllJobs(ctx context.Context, batchID string, filter JobFilter) ([]*batchjob.JobDefinition, error) {
	query := "SELECT job_id, position, class, compensation, args, status, result, error, queue_message_id, completed_at FROM batch_jobs WHERE batch_id = ?"
	args := []interface{}{batchID}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY position"

	rows, err := ss.db.QueryContext(ctx, query, args...)
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

func (ss *SQLiteStorage) GetBatches(ctx context.Context, filter BatchFilter, limit, offset int) ([]*batchjob.Batch, error) {
	where, args := buildBatchFilterSQLite(filter)
	query := fmt.Sprintf(`
		SELECT id, type, status, total_jobs, completed_jobs, failed_jobs, context, options,
			queue_name, queue_config, created_at, modified_at, completed_at
		FROM batches %s ORDER BY created_at DESC LIMIT %d OFFSET %d
	`, where, limit, offset)

	rows, err := ss.db.QueryContext(ctx, query, args...)
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

func (ss *SQLiteStorage) CountBatches(ctx context.Context, filter BatchFilter) (int, error) {
	where, args := buildBatchFilterSQLite(filter)
	query := "SELECT COUNT(*) FROM batches " + where
	var count int
	err := ss.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func buildBatchFilterSQLite(filter BatchFilter) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.HasCompensation != nil {
		if *filter.HasCompensation {
			clauses = append(clauses, "EXISTS (SELECT 1 FROM batch_jobs bj WHERE bj.batch_id = batches.id AND bj.compensation <> '')")
		} else {
			clauses = append(clauses, "NOT EXISTS (SELECT 1 FROM batch_jobs bj WHERE bj.batch_id = batches.id AND bj.compensation <> '')")
		}
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, *filter.CreatedBefore)
	}
	if filter.CreatedAfter != nil {
		clauses = append(clauses, "created_at > ?")
		args = append(args, *filter.CreatedAfter)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (ss *SQLiteStorage) DeleteBatch(ctx context.Context, batchID string) error {
	res, err := ss.db.ExecContext(ctx, "DELETE FROM batches WHERE id = ?", batchID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.BatchNotFoundErr(batchID)
	}
	return nil
}

func (ss *SQLiteStorage) CleanupOldBatches(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := ss.db.ExecContext(ctx, `
		DELETE FROM batches WHERE status IN (?, ?) AND completed_at < ?
	`, batchjob.BatchCompleted, batchjob.BatchFailed, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (ss *SQLiteStorage) HealthCheck(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}
