package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/searchsync/internal/engine"
	"github.com/utafrali/searchsync/internal/service"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
	"github.com/utafrali/searchsync/pkg/logger"
)

// Models resolves declared models by name.
type Models interface {
	Model(name string) (*service.Model, error)
}

// Importer runs batch imports. In production it is the long-timeout gateway.
type Importer interface {
	ImportDocuments(ctx context.Context, collection string, jsonl []byte, opts engine.ImportOptions) (*engine.ImportResult, error)
}

// JobConsumer executes index, remove and import jobs.
type JobConsumer struct {
	models   Models
	importer Importer
	logger   *slog.Logger
}

// NewJobConsumer creates a job consumer.
func NewJobConsumer(models Models, importer Importer, logger *slog.Logger) *JobConsumer {
	return &JobConsumer{
		models:   models,
		importer: importer,
		logger:   logger,
	}
}

// Handle processes one job based on its type. Jobs for unknown models or of
// unknown types are logged and dropped.
func (c *JobConsumer) Handle(ctx context.Context, job *pkgkafka.Job) error {
	if job.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, job.CorrelationID)
	}
	ctx = logger.WithJobID(ctx, job.JobID)
	log := logger.WithContext(ctx, c.logger)

	model, err := c.models.Model(job.Model)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.WarnContext(ctx, "job for undeclared model dropped",
				slog.String("model", job.Model),
				slog.String("job_type", job.JobType),
			)
			return nil
		}
		return err
	}

	switch job.JobType {
	case JobTypeIndex:
		return c.handleIndex(ctx, log, model, job)
	case JobTypeRemove:
		return c.handleRemove(ctx, model, job)
	case JobTypeImport:
		return c.handleImport(ctx, log, model, job)
	default:
		log.WarnContext(ctx, "unknown job type received",
			slog.String("job_type", job.JobType),
		)
		return nil
	}
}

// handleIndex reloads the record and indexes it. A record deleted after the
// job was enqueued is skipped; its remove job follows on the same key.
func (c *JobConsumer) handleIndex(ctx context.Context, log *slog.Logger, model *service.Model, job *pkgkafka.Job) error {
	var data RecordJobData
	if err := job.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal index job data: %w", err)
	}

	rec, err := model.Find(ctx, data.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.WarnContext(ctx, "record vanished before index job ran",
				slog.String("model", model.Name()),
				slog.String("id", data.ID),
			)
			return nil
		}
		return fmt.Errorf("load %s %s: %w", model.Name(), data.ID, err)
	}

	if err := model.Index(ctx, rec); err != nil {
		return fmt.Errorf("index %s %s: %w", model.Name(), data.ID, err)
	}
	return nil
}

func (c *JobConsumer) handleRemove(ctx context.Context, model *service.Model, job *pkgkafka.Job) error {
	var data RecordJobData
	if err := job.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal remove job data: %w", err)
	}

	if err := model.RemoveByID(ctx, data.ID); err != nil {
		// Nothing to remove from an index that was never created.
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("remove %s %s: %w", model.Name(), data.ID, err)
	}
	return nil
}

func (c *JobConsumer) handleImport(ctx context.Context, log *slog.Logger, model *service.Model, job *pkgkafka.Job) error {
	var data ImportJobData
	if err := job.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal import job data: %w", err)
	}

	collection := data.Collection
	if collection == "" {
		collection = model.IndexName()
	}

	res, err := c.importer.ImportDocuments(ctx, collection, []byte(data.Documents), engine.ImportOptions{
		Action:    engine.ActionUpsert,
		BatchSize: model.Config().EffectiveBatchSize(data.BatchSize),
	})
	if err != nil {
		return fmt.Errorf("import into %s: %w", collection, err)
	}

	log.InfoContext(ctx, "import job completed",
		slog.String("model", model.Name()),
		slog.String("collection", collection),
		slog.Int("success", res.Success),
		slog.Int("failed", res.Failed),
	)
	return nil
}
