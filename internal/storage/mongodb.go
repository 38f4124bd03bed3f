package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// MongoStorage implements Storage on a single "batches" collection,
// embedding each batch's jobs as a document array. It is a third
// backend beyond the two the storage contract requires, wired in
// because go.mongodb.org/mongo-driver is a real dependency worth
// exercising and the contract generalizes to a document store cleanly.
type MongoStorage struct {
	client   *mongo.Client
	database *mongo.Database
	batches  *mongo.Collection
}

func NewMongoStorage(uri, dbName string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	database := client.Database(dbName)
	ms := &MongoStorage{
		client:   client,
		database: database,
		batches:  database.Collection("batches"),
	}
	if err := ms.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return ms, nil
}

func (ms *MongoStorage) createIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "jobs.position", Value: 1}}},
	}
	_, err := ms.batches.Indexes().CreateMany(ctx, indexes)
	return err
}

// mongoBatchDoc mirrors batchjob.Batch with bson tags for storage; the
// domain type stays free of persistence concerns.
type mongoBatchDoc struct {
	ID            string                 `bson:"_id"`
	Type          batchjob.BatchType     `bson:"type"`
	Status        batchjob.BatchStatus   `bson:"status"`
	TotalJobs     int                    `bson:"total_jobs"`
	CompletedJobs int                    `bson:"completed_jobs"`
	FailedJobs    int                    `bson:"failed_jobs"`
	Context       map[string]interface{} `bson:"context"`
	Options       batchjob.Options       `bson:"options"`
	QueueName     string                 `bson:"queue_name"`
	QueueConfig   string                 `bson:"queue_config"`
	Jobs          []mongoJobDoc          `bson:"jobs"`
	Created       time.Time              `bson:"created_at"`
	Modified      time.Time              `bson:"modified_at"`
	CompletedAt   *time.Time             `bson:"completed_at,omitempty"`
}

type mongoJobDoc struct {
	ID           string                 `bson:"id"`
	Class        string                 `bson:"class"`
	Compensation string                 `bson:"compensation,omitempty"`
	Position     int                    `bson:"position"`
	Args         map[string]interface{} `bson:"args"`
	JobID        string                 `bson:"job_id,omitempty"`
	Status       batchjob.JobStatus     `bson:"status"`
	Result       map[string]interface{} `bson:"result,omitempty"`
	Error        *batchjob.JobError     `bson:"error,omitempty"`
	CompletedAt  *time.Time             `bson:"completed_at,omitempty"`
}

func toDoc(b *batchjob.Batch) mongoBatchDoc {
	jobs := make([]mongoJobDoc, len(b.Jobs))
	for i, j := range b.Jobs {
		jobs[i] = mongoJobDoc{
			ID: j.ID, Class: j.Class, Compensation: j.Compensation, Position: j.Position,
			Args: j.Args, JobID: j.JobID, Status: j.Status, Result: j.Result,
			Error: j.Error, CompletedAt: j.CompletedAt,
		}
	}
	return mongoBatchDoc{
		ID: b.ID, Type: b.Type, Status: b.Status, TotalJobs: b.TotalJobs,
		CompletedJobs: b.CompletedJobs, FailedJobs: b.FailedJobs, Context: b.Context,
		Options: b.Options, QueueName: b.QueueName, QueueConfig: b.QueueConfig,
		Jobs: jobs, Created: b.Created, Modified: b.Modified, CompletedAt: b.CompletedAt,
	}
}

func fromDoc(d mongoBatchDoc) *batchjob.Batch {
	jobs := make([]*batchjob.JobDefinition, len(d.Jobs))
	for i, j := range d.Jobs {
		jobs[i] = &batchjob.JobDefinition{
			ID: j.ID, Class: j.Class, Compensation: j.Compensation, Position: j.Position,
			Args: j.Args, JobID: j.JobID, Status: j.Status, Result: j.Result,
			Error: j.Error, CompletedAt: j.CompletedAt,
		}
	}
	return &batchjob.Batch{
		ID: d.ID, Type: d.Type, Status: d.Status, TotalJobs: d.TotalJobs,
		CompletedJobs: d.CompletedJobs, FailedJobs: d.FailedJobs, Context: d.Context,
		Options: d.Options, QueueName: d.QueueName, QueueConfig: d.QueueConfig,
		Jobs: jobs, Created: d.Created, Modified: d.Modified, CompletedAt: d.CompletedAt,
	}
}

func (ms *MongoStorage) CreateBatch(ctx context.Context, b *batchjob.Batch) (string, error) {
	doc := toDoc(b)
	if _, err := ms.batches.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return b.ID, nil
}

func (ms *MongoStorage) UpdateBatch(ctx context.Context, id string, fields map[string]interface{}) error {
	set := bson.M{"modified_at": time.Now()}
	for k, v := range fields {
		switch k {
		case "status":
			set["status"] = v
		case "context", "options", "total_jobs", "completed_jobs", "failed_jobs", "queue_name", "queue_config", "completed_at":
			set[k] = v
		}
	}
	res, err := ms.batches.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errors.BatchNotFoundErr(id)
	}
	return nil
}

func (ms *MongoStorage) GetBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	var doc mongoBatchDoc
	err := ms.batches.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.BatchNotFoundErr(id)
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(doc), nil
}

func (ms *MongoStorage) AddJobsToBatch(ctx context.Context, id string, jobs []*batchjob.JobDefinition) (int, error) {
	var doc mongoBatchDoc
	if err := ms.batches.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err == mongo.ErrNoDocuments {
		return 0, errors.BatchNotFoundErr(id)
	} else if err != nil {
		return 0, err
	}
	if doc.Status.IsTerminal() {
		return 0, errors.BatchClosedErr(id)
	}

	newDocs := make([]interface{}, len(jobs))
	for i, j := range jobs {
		j.Position = doc.TotalJobs + i
		newDocs[i] = mongoJobDoc{
			ID: j.ID, Class: j.Class, Compensation: j.Compensation, Position: j.Position,
			Args: j.Args, Status: j.Status,
		}
	}

	_, err := ms.batches.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"jobs": bson.M{"$each": newDocs}},
		"$set":  bson.M{"total_jobs": doc.TotalJobs + len(jobs), "modified_at": time.Now()},
	})
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (ms *MongoStorage) GetJobByPosition(ctx context.Context, batchID string, position int) (*batchjob.JobDefinition, error) {
	jobs, err := ms.GetAllJobs(ctx, batchID, JobFilter{})
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.Position == position {
			return j, nil
		}
	}
	return nil, errors.ErrJobNotFound
}

func (ms *MongoStorage) GetJobByID(ctx context.Context, batchID, jobID string) (*batchjob.JobDefinition, error) {
	jobs, err := ms.GetAllJobs(ctx, batchID, JobFilter{})
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

func (ms *MongoStorage) UpdateJobQueueMessageID(ctx context.Context, batchID string, position int, queueMessageID string) error {
	res, err := ms.batches.UpdateOne(ctx,
		bson.M{"_id": batchID, "jobs.position": position},
		bson.M{"$set": bson.M{"jobs.$.job_id": queueMessageID, "jobs.$.status": batchjob.JobRunning}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

func (ms *MongoStorage) UpdateJobStatus(ctx context.Context, batchID string, position int, status batchjob.JobStatus, result map[string]interface{}, jobErr *batchjob.JobError) error {
	set := bson.M{"jobs.$.status": status}
	if result != nil {
		set["jobs.$.result"] = result
	}
	if jobErr != nil {
		set["jobs.$.error"] = jobErr
	}
	if status == batchjob.JobCompleted || status == batchjob.JobFailed {
		set["jobs.$.completed_at"] = time.Now()
	}

	res, err := ms.batches.UpdateOne(ctx,
		bson.M{"_id": batchID, "jobs.position": position},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

func (ms *MongoStorage) IncrementCompletedJob(ctx context.Context, batchID string) (int, error) {
	return ms.recomputeCounter(ctx, batchID, batchjob.JobCompleted, "completed_jobs")
}

func (ms *MongoStorage) IncrementFailedJob(ctx context.Context, batchID string) (int, error) {
	return ms.recomputeCounter(ctx, batchID, batchjob.JobFailed, "failed_jobs")
}

func (ms *MongoStorage) recomputeCounter(ctx context.Context, batchID string, status batchjob.JobStatus, field string) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": batchID}}},
		{{Key: "$project", Value: bson.M{
			"count": bson.M{"$size": bson.M{"$filter": bson.M{
				"input": "$jobs",
				"as":    "j",
				"cond":  bson.M{"$eq": bson.A{"$$j.status", status}},
			}}},
		}}},
	}
	cursor, err := ms.batches.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var result struct {
		Count int `bson:"count"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, err
		}
	} else {
		return 0, errors.BatchNotFoundErr(batchID)
	}

	_, err = ms.batches.UpdateOne(ctx, bson.M{"_id": batchID}, bson.M{"$set": bson.M{field: result.Count, "modified_at": time.Now()}})
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (ms *MongoStorage) GetBatchResults(ctx context.Context, batchID string) (map[string]map[string]interface{}, error) {
	jobs, err := ms.GetAllJobs(ctx, batchID, JobFilter{})
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

func (ms *MongoStorage) GetAllJobs(ctx context.Context, batchID string, filter JobFilter) ([]*batchjob.JobDefinition, error) {
	b, err := ms.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if filter.Status == "" {
		return b.Jobs, nil
	}
	filtered := make([]*batchjob.JobDefinition, 0)
	for _, j := range b.Jobs {
		if j.Status == filter.Status {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

func (ms *MongoStorage) GetBatches(ctx context.Context, filter BatchFilter, limit, offset int) ([]*batchjob.Batch, error) {
	query := mongoFilterQuery(filter)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := ms.batches.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	batches := make([]*batchjob.Batch, 0)
	for cursor.Next(ctx) {
		var doc mongoBatchDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		batches = append(batches, fromDoc(doc))
	}
	return batches, nil
}

func (ms *MongoStorage) CountBatches(ctx context.Context, filter BatchFilter) (int, error) {
	query := mongoFilterQuery(filter)
	count, err := ms.batches.CountDocuments(ctx, query)
	return int(count), err
}

func mongoFilterQuery(filter BatchFilter) bson.M {
	query := bson.M{}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.HasCompensation != nil {
		if *filter.HasCompensation {
			query["jobs.compensation"] = bson.M{"$ne": ""}
		} else {
			query["jobs.compensation"] = bson.M{"$eq": ""}
		}
	}
	createdQuery := bson.M{}
	if filter.CreatedBefore != nil {
		createdQuery["$lt"] = *filter.CreatedBefore
	}
	if filter.CreatedAfter != nil {
		createdQuery["$gt"] = *filter.CreatedAfter
	}
	if len(createdQuery) > 0 {
		query["created_at"] = createdQuery
	}
	return query
}

func (ms *MongoStorage) DeleteBatch(ctx context.Context, batchID string) error {
	res, err := ms.batches.DeleteOne(ctx, bson.M{"_id": batchID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errors.BatchNotFoundErr(batchID)
	}
	return nil
}

func (ms *MongoStorage) CleanupOldBatches(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := ms.batches.DeleteMany(ctx, bson.M{
		"status":       bson.M{"$in": bson.A{batchjob.BatchCompleted, batchjob.BatchFailed}},
		"completed_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (ms *MongoStorage) HealthCheck(ctx context.Context) error {
	return ms.client.Ping(ctx, nil)
}

func (ms *MongoStorage) Close() error {
	return ms.client.Disconnect(context.Background())
}
