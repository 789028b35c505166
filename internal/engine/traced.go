package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/searchsync/internal/domain"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

const tracerName = "github.com/utafrali/searchsync/internal/engine"

// Traced wraps a Gateway and records a client span per call. Not-found
// results are expected during binding resolution and are not marked as
// span errors.
type Traced struct {
	next    Gateway
	backend string
}

var _ Gateway = (*Traced)(nil)

// NewTraced returns a tracing decorator around next. backend names the
// engine in span attributes, e.g. "typesense".
func NewTraced(next Gateway, backend string) *Traced {
	return &Traced{next: next, backend: backend}
}

func (t *Traced) start(ctx context.Context, op, collection string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("search.backend", t.backend),
		attribute.String("search.operation", op),
		attribute.String("search.collection", collection),
	)
	return otel.Tracer(tracerName).Start(ctx, "search."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finish(span trace.Span, err error) {
	if err != nil && !apperrors.IsObjectNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Traced) CreateCollection(ctx context.Context, schema domain.CollectionSchema) (err error) {
	ctx, span := t.start(ctx, "create_collection", schema.Name)
	defer func() { finish(span, err) }()
	return t.next.CreateCollection(ctx, schema)
}

func (t *Traced) GetCollection(ctx context.Context, name string) (_ *CollectionInfo, err error) {
	ctx, span := t.start(ctx, "get_collection", name)
	defer func() { finish(span, err) }()
	return t.next.GetCollection(ctx, name)
}

func (t *Traced) DeleteCollection(ctx context.Context, name string) (err error) {
	ctx, span := t.start(ctx, "delete_collection", name)
	defer func() { finish(span, err) }()
	return t.next.DeleteCollection(ctx, name)
}

func (t *Traced) UpsertAlias(ctx context.Context, alias, collection string) (err error) {
	ctx, span := t.start(ctx, "upsert_alias", collection, attribute.String("search.alias", alias))
	defer func() { finish(span, err) }()
	return t.next.UpsertAlias(ctx, alias, collection)
}

func (t *Traced) GetAlias(ctx context.Context, alias string) (_ *Alias, err error) {
	ctx, span := t.start(ctx, "get_alias", "", attribute.String("search.alias", alias))
	defer func() { finish(span, err) }()
	return t.next.GetAlias(ctx, alias)
}

func (t *Traced) UpsertDocument(ctx context.Context, collection string, doc domain.Document, dirtyValues string) (err error) {
	ctx, span := t.start(ctx, "upsert_document", collection, attribute.String("search.document_id", doc.ID()))
	defer func() { finish(span, err) }()
	return t.next.UpsertDocument(ctx, collection, doc, dirtyValues)
}

func (t *Traced) ImportDocuments(ctx context.Context, collection string, jsonl []byte, opts ImportOptions) (_ *ImportResult, err error) {
	ctx, span := t.start(ctx, "import_documents", collection,
		attribute.Int("search.batch_size", opts.BatchSize),
		attribute.Int("search.payload_bytes", len(jsonl)),
	)
	defer func() { finish(span, err) }()

	res, err := t.next.ImportDocuments(ctx, collection, jsonl, opts)
	if res != nil {
		span.SetAttributes(
			attribute.Int("search.import.success", res.Success),
			attribute.Int("search.import.failed", res.Failed),
		)
	}
	return res, err
}

func (t *Traced) RetrieveDocument(ctx context.Context, collection, id string) (_ domain.Document, err error) {
	ctx, span := t.start(ctx, "retrieve_document", collection, attribute.String("search.document_id", id))
	defer func() { finish(span, err) }()
	return t.next.RetrieveDocument(ctx, collection, id)
}

func (t *Traced) DeleteDocument(ctx context.Context, collection, id string) (err error) {
	ctx, span := t.start(ctx, "delete_document", collection, attribute.String("search.document_id", id))
	defer func() { finish(span, err) }()
	return t.next.DeleteDocument(ctx, collection, id)
}

func (t *Traced) DeleteByQuery(ctx context.Context, collection, filterBy string) (_ int, err error) {
	ctx, span := t.start(ctx, "delete_by_query", collection, attribute.String("search.filter_by", filterBy))
	defer func() { finish(span, err) }()
	return t.next.DeleteByQuery(ctx, collection, filterBy)
}

func (t *Traced) Search(ctx context.Context, collection string, params SearchParams) (_ *SearchResult, err error) {
	ctx, span := t.start(ctx, "search", collection,
		attribute.String("search.q", params.Q),
		attribute.String("search.query_by", params.QueryBy),
	)
	defer func() { finish(span, err) }()

	res, err := t.next.Search(ctx, collection, params)
	if res != nil {
		span.SetAttributes(attribute.Int("search.found", res.Found))
	}
	return res, err
}

func (t *Traced) UpsertSynonym(ctx context.Context, collection string, synonym domain.Synonym) (err error) {
	ctx, span := t.start(ctx, "upsert_synonym", collection, attribute.String("search.synonym", synonym.Name))
	defer func() { finish(span, err) }()
	return t.next.UpsertSynonym(ctx, collection, synonym)
}
