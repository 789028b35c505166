package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	"github.com/utafrali/searchsync/internal/scope"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/logger"
)

// ReindexResult summarizes an alias-swap reindex.
type ReindexResult struct {
	Alias      string        `json:"alias"`
	Collection string        `json:"collection"`
	Previous   string        `json:"previous,omitempty"`
	Imported   int           `json:"imported"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// MustReindex reports whether rec's searchable state changed.
func (m *Model) MustReindex(rec domain.Record) bool {
	return m.syncer.checker.MustReindex(rec, m.cfg)
}

// Find loads one record from the model's source.
func (m *Model) Find(ctx context.Context, id string) (domain.Record, error) {
	if err := m.requireSource(); err != nil {
		return nil, err
	}
	return m.source.Find(ctx, id)
}

func (m *Model) requireSource() error {
	if m.source == nil {
		return apperrors.BadConfiguration(fmt.Sprintf("model %s has no record source", m.name))
	}
	return nil
}

func (m *Model) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, m.syncer.logger).With(slog.String("model", m.name))
}

// Index upserts rec into the collection, or removes it when a conditional
// configuration no longer considers it indexable.
func (m *Model) Index(ctx context.Context, rec domain.Record) error {
	if scope.Suppressed(ctx, m.name) || m.cfg.IndexingDisabled() {
		return nil
	}

	id := m.cfg.ObjectID(rec)
	if m.cfg.Indexable(rec) {
		if domain.IsBlank(id) {
			return apperrors.MissingIdentifier(m.name)
		}
		b, err := m.EnsureBinding(ctx, true)
		if err != nil {
			return err
		}
		doc, err := m.document(rec, id)
		if err != nil {
			return err
		}
		if err := m.syncer.gateway.UpsertDocument(ctx, b.AliasName, doc, m.cfg.DirtyValues); err != nil {
			return fmt.Errorf("index %s %s: %w", m.name, id, err)
		}
		documentsImported.WithLabelValues(m.name, "success").Inc()
		return nil
	}

	if m.cfg.Conditional() && !domain.IsBlank(id) {
		b, err := m.EnsureBinding(ctx, true)
		if err != nil {
			return err
		}
		return m.deleteDocument(ctx, b.AliasName, id)
	}
	return nil
}

// Remove deletes rec's document. A document that is already gone is not an
// error.
func (m *Model) Remove(ctx context.Context, rec domain.Record) error {
	if scope.Suppressed(ctx, m.name) || m.cfg.IndexingDisabled() {
		return nil
	}
	return m.RemoveByID(ctx, m.cfg.ObjectID(rec))
}

// RemoveByID deletes a document by id. It is used when the record itself is
// no longer loadable, e.g. by removal jobs.
func (m *Model) RemoveByID(ctx context.Context, id string) error {
	if m.cfg.IndexingDisabled() {
		return nil
	}
	if domain.IsBlank(id) {
		return apperrors.MissingIdentifier(m.name)
	}
	b, err := m.EnsureBinding(ctx, false)
	if err != nil {
		return err
	}
	return m.deleteDocument(ctx, b.AliasName, id)
}

func (m *Model) deleteDocument(ctx context.Context, collection, id string) error {
	err := m.syncer.gateway.DeleteDocument(ctx, collection, id)
	if apperrors.IsObjectNotFound(err) {
		m.log(ctx).ErrorContext(ctx, "document to remove was not in the index",
			slog.String("id", id),
			slog.String("collection", collection),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove %s %s: %w", m.name, id, err)
	}
	documentsDeleted.WithLabelValues(m.name).Inc()
	return nil
}

// ReindexInPlace resynchronizes every record into the current collection,
// one page at a time. Records that fail a conditional configuration are
// deleted first. It returns the last page's import result. Records that no
// longer exist in the source are left in the index. Only one reindex of a
// model runs at a time; a concurrent call fails with a CONFLICT error.
func (m *Model) ReindexInPlace(ctx context.Context, batchSize int) (result *engine.ImportResult, err error) {
	if scope.Suppressed(ctx, m.name) || m.cfg.IndexingDisabled() {
		return nil, nil
	}
	if err := m.requireSource(); err != nil {
		return nil, err
	}
	done, err := m.beginReindex()
	if err != nil {
		return nil, err
	}
	defer done()
	start := time.Now()
	defer func() { m.observeReindex("inplace", start, err) }()

	b, err := m.EnsureBinding(ctx, true)
	if err != nil {
		return nil, err
	}
	size := m.cfg.EffectiveBatchSize(batchSize)

	err = m.source.FindInBatches(ctx, size, func(ctx context.Context, batch []domain.Record) error {
		page := m.partition(batch)
		if len(page.removed) > 0 {
			n, err := m.syncer.gateway.DeleteByQuery(ctx, b.AliasName, engine.IDFilter(page.removed))
			if err != nil {
				return err
			}
			documentsDeleted.WithLabelValues(m.name).Add(float64(n))
		}
		res, err := m.importRecords(ctx, b.AliasName, page.kept, size)
		if err != nil {
			return err
		}
		if res != nil {
			result = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log(ctx).InfoContext(ctx, "in-place reindex completed",
		slog.String("collection", b.CollectionName),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// Reindex rebuilds the index into a new collection generation and points
// the alias at it once every page has been imported. If any page fails the
// alias keeps pointing at the previous generation.
func (m *Model) Reindex(ctx context.Context, batchSize int) (result *ReindexResult, err error) {
	if scope.Suppressed(ctx, m.name) || m.cfg.IndexingDisabled() {
		return nil, nil
	}
	if err := m.requireSource(); err != nil {
		return nil, err
	}
	done, err := m.beginReindex()
	if err != nil {
		return nil, err
	}
	defer done()
	start := time.Now()
	defer func() { m.observeReindex("swap", start, err) }()

	gw := m.syncer.gateway
	result = &ReindexResult{Alias: m.alias}

	current, err := gw.GetAlias(ctx, m.alias)
	switch {
	case err == nil:
		result.Previous = current.CollectionName
	case apperrors.IsObjectNotFound(err):
		m.log(ctx).InfoContext(ctx, "no current index, building first generation")
	default:
		return nil, fmt.Errorf("reindex %s: %w", m.name, err)
	}

	name, err := m.createGeneration(ctx)
	if err != nil {
		return nil, err
	}
	result.Collection = name

	size := m.cfg.EffectiveBatchSize(batchSize)
	err = m.source.FindInBatches(ctx, size, func(ctx context.Context, batch []domain.Record) error {
		res, err := m.importRecords(ctx, name, m.partition(batch).kept, size)
		if err != nil {
			return err
		}
		if res != nil {
			result.Imported += res.Success
			result.Failed += res.Failed
		}
		return nil
	})
	if err != nil {
		m.log(ctx).ErrorContext(ctx, "reindex aborted, alias left unchanged",
			slog.String("collection", name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := gw.UpsertAlias(ctx, m.alias, name); err != nil {
		return nil, fmt.Errorf("reindex %s: swap alias: %w", m.name, err)
	}
	m.setBinding(&domain.Binding{CollectionName: name, AliasName: m.alias})

	result.Duration = time.Since(start)
	m.log(ctx).InfoContext(ctx, "reindex completed",
		slog.String("collection", name),
		slog.String("previous", result.Previous),
		slog.Int("imported", result.Imported),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// IndexObjects imports recs as given, without conditional filtering, in
// pages of the configured batch size. It returns the last page's result.
func (m *Model) IndexObjects(ctx context.Context, recs []domain.Record) (*engine.ImportResult, error) {
	if len(recs) == 0 || m.cfg.IndexingDisabled() {
		return nil, nil
	}
	b, err := m.EnsureBinding(ctx, true)
	if err != nil {
		return nil, err
	}
	size := m.cfg.EffectiveBatchSize(0)

	var last *engine.ImportResult
	for start := 0; start < len(recs); start += size {
		end := min(start+size, len(recs))
		res, err := m.importRecords(ctx, b.AliasName, recs[start:end], size)
		if err != nil {
			return nil, err
		}
		last = res
	}
	return last, nil
}

// ClearIndex deletes the collection behind the alias and forgets the cached
// binding. Clearing an index that does not exist is a no-op.
func (m *Model) ClearIndex(ctx context.Context) error {
	if m.cfg.IndexingDisabled() {
		return nil
	}
	defer m.setBinding(nil)

	err := m.syncer.gateway.DeleteCollection(ctx, m.alias)
	if apperrors.IsObjectNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear index %s: %w", m.name, err)
	}
	m.log(ctx).InfoContext(ctx, "search index cleared", slog.String("index", m.alias))
	return nil
}

// Reindexing reports whether a reindex of the model is running in this
// process.
func (m *Model) Reindexing() bool {
	return m.reindexing.Load()
}

func (m *Model) beginReindex() (func(), error) {
	if !m.reindexing.CompareAndSwap(false, true) {
		return nil, apperrors.Conflict(fmt.Sprintf("a reindex of %s is already running", m.name))
	}
	return func() { m.reindexing.Store(false) }, nil
}

type partitioned struct {
	kept    []domain.Record
	removed []string
}

// partition splits a page into indexable records and the ids of records a
// conditional configuration excludes.
func (m *Model) partition(batch []domain.Record) partitioned {
	if !m.cfg.Conditional() {
		return partitioned{kept: batch}
	}
	var p partitioned
	for _, rec := range batch {
		if m.cfg.Indexable(rec) {
			p.kept = append(p.kept, rec)
			continue
		}
		if id := m.cfg.ObjectID(rec); !domain.IsBlank(id) {
			p.removed = append(p.removed, id)
		}
	}
	return p
}

func (m *Model) document(rec domain.Record, id string) (domain.Document, error) {
	doc, err := m.syncer.extractor.Extract(rec, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("extract %s %s: %w", m.name, id, err)
	}
	return doc.WithID(id), nil
}

// importRecords extracts recs and imports them as one JSONL batch. Documents
// the engine rejects are logged; only transport failures are returned.
func (m *Model) importRecords(ctx context.Context, collection string, recs []domain.Record, batchSize int) (*engine.ImportResult, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	docs := make([]domain.Document, 0, len(recs))
	for _, rec := range recs {
		id := m.cfg.ObjectID(rec)
		if domain.IsBlank(id) {
			return nil, apperrors.MissingIdentifier(m.name)
		}
		doc, err := m.document(rec, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	jsonl, err := domain.EncodeJSONL(docs)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", m.name, err)
	}
	res, err := m.syncer.gateway.ImportDocuments(ctx, collection, jsonl, engine.ImportOptions{
		Action:    engine.ActionUpsert,
		BatchSize: batchSize,
	})
	if err != nil {
		return nil, err
	}

	importBatches.WithLabelValues(m.name).Inc()
	documentsImported.WithLabelValues(m.name, "success").Add(float64(res.Success))
	documentsImported.WithLabelValues(m.name, "failed").Add(float64(res.Failed))
	if res.Failed > 0 {
		log := m.log(ctx)
		for _, item := range res.Items {
			if !item.Success {
				log.WarnContext(ctx, "document rejected by search engine",
					slog.String("collection", collection),
					slog.String("id", item.ID),
					slog.String("error", item.Error),
				)
			}
		}
	}
	return res, nil
}

func (m *Model) observeReindex(mode string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	reindexDuration.WithLabelValues(m.name, mode, status).Observe(time.Since(start).Seconds())
}
