package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/searchsync/internal/domain"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
	"github.com/utafrali/searchsync/pkg/logger"
)

// Job types carried on the job topics.
const (
	JobTypeIndex  = "index"
	JobTypeRemove = "remove"
	JobTypeImport = "import"
)

// JobSource identifies this service as the producer of a job.
const JobSource = "searchsync"

// Topics the producer publishes to. Index and remove jobs share a topic so
// that, keyed by record id, they stay ordered per record.
var (
	TopicRecordJobs = pkgkafka.Topic("jobs", "record")
	TopicImportJobs = pkgkafka.Topic("jobs", "import")
)

// RecordJobData is the payload of index and remove jobs.
type RecordJobData struct {
	ID string `json:"id"`
}

// ImportJobData is the payload of an import job. Collection may be empty, in
// which case the consumer imports into the model's alias.
type ImportJobData struct {
	Collection string `json:"collection,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty"`
	Documents  string `json:"documents"`
}

// Publisher is the part of *pkgkafka.Producer the job producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, job *pkgkafka.Job) error
}

// JobProducer turns lifecycle dispatches into Kafka jobs.
type JobProducer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewJobProducer creates a job producer.
func NewJobProducer(publisher Publisher, logger *slog.Logger) *JobProducer {
	return &JobProducer{publisher: publisher, logger: logger}
}

// EnqueueFunc returns the dispatcher for one model. Records are identified by
// the configuration's id attribute; a record without one cannot be enqueued.
func (p *JobProducer) EnqueueFunc(model string, cfg domain.IndexConfiguration) domain.EnqueueFunc {
	return func(ctx context.Context, rec domain.Record, remove bool) error {
		id := cfg.ObjectID(rec)
		if domain.IsBlank(id) {
			return apperrors.MissingIdentifier(model)
		}
		return p.Enqueue(ctx, model, id, remove)
	}
}

// Enqueue publishes an index job, or a remove job when remove is true.
func (p *JobProducer) Enqueue(ctx context.Context, model, id string, remove bool) error {
	jobType := JobTypeIndex
	if remove {
		jobType = JobTypeRemove
	}

	job, err := pkgkafka.NewJob(jobType, model, id, JobSource, RecordJobData{ID: id})
	if err != nil {
		return fmt.Errorf("build %s job: %w", jobType, err)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		job.WithCorrelationID(cid)
	}

	if err := p.publisher.Publish(ctx, TopicRecordJobs, job); err != nil {
		return fmt.Errorf("enqueue %s job for %s %s: %w", jobType, model, id, err)
	}

	logger.WithContext(ctx, p.logger).DebugContext(ctx, "job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("job_type", jobType),
		slog.String("model", model),
		slog.String("id", id),
	)
	return nil
}

// EnqueueImport publishes a newline-delimited JSON batch for asynchronous
// import. An empty batch is not published.
func (p *JobProducer) EnqueueImport(ctx context.Context, model, collection string, jsonl []byte, batchSize int) error {
	if len(jsonl) == 0 {
		return nil
	}

	job, err := pkgkafka.NewJob(JobTypeImport, model, model, JobSource, ImportJobData{
		Collection: collection,
		BatchSize:  batchSize,
		Documents:  string(jsonl),
	})
	if err != nil {
		return fmt.Errorf("build import job: %w", err)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		job.WithCorrelationID(cid)
	}

	if err := p.publisher.Publish(ctx, TopicImportJobs, job); err != nil {
		return fmt.Errorf("enqueue import job for %s: %w", model, err)
	}
	return nil
}
