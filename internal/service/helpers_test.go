package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	"github.com/utafrali/searchsync/internal/engine/memory"
	memsource "github.com/utafrali/searchsync/internal/repository/memory"
)

var testNow = time.Unix(1700000000, 0)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type importCall struct {
	collection string
	docs       int
	batchSize  int
}

// spyGateway records the calls the sync engine makes and can fail imports.
type spyGateway struct {
	engine.Gateway

	mu            sync.Mutex
	imports       []importCall
	deleteQueries []string
	aliasSwaps    []string
	upserts       []domain.Document
	creates       int

	// failImportAt makes the n-th import call (1-based) return importErr.
	failImportAt int
	importErr    error
}

func (s *spyGateway) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.Gateway.CreateCollection(ctx, schema)
}

func (s *spyGateway) UpsertDocument(ctx context.Context, collection string, doc domain.Document, dirtyValues string) error {
	s.mu.Lock()
	s.upserts = append(s.upserts, doc)
	s.mu.Unlock()
	return s.Gateway.UpsertDocument(ctx, collection, doc, dirtyValues)
}

func (s *spyGateway) ImportDocuments(ctx context.Context, collection string, jsonl []byte, opts engine.ImportOptions) (*engine.ImportResult, error) {
	s.mu.Lock()
	s.imports = append(s.imports, importCall{
		collection: collection,
		docs:       bytes.Count(bytes.TrimSpace(jsonl), []byte("\n")) + 1,
		batchSize:  opts.BatchSize,
	})
	n := len(s.imports)
	s.mu.Unlock()

	if s.failImportAt > 0 && n >= s.failImportAt {
		return nil, s.importErr
	}
	return s.Gateway.ImportDocuments(ctx, collection, jsonl, opts)
}

func (s *spyGateway) DeleteByQuery(ctx context.Context, collection, filterBy string) (int, error) {
	s.mu.Lock()
	s.deleteQueries = append(s.deleteQueries, filterBy)
	s.mu.Unlock()
	return s.Gateway.DeleteByQuery(ctx, collection, filterBy)
}

func (s *spyGateway) UpsertAlias(ctx context.Context, alias, collection string) error {
	s.mu.Lock()
	s.aliasSwaps = append(s.aliasSwaps, collection)
	s.mu.Unlock()
	return s.Gateway.UpsertAlias(ctx, alias, collection)
}

func (s *spyGateway) importSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.imports))
	for i, c := range s.imports {
		out[i] = c.docs
	}
	return out
}

type testEnv struct {
	syncer *Syncer
	spy    *spyGateway
	mem    *memory.Engine
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	mem := memory.New()
	spy := &spyGateway{Gateway: mem}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return &testEnv{
		syncer: NewSyncer(spy, newTestLogger(), opts...),
		spy:    spy,
		mem:    mem,
	}
}

func (e *testEnv) declare(t *testing.T, name string, cfg domain.IndexConfiguration, records ...domain.Record) (*Model, *memsource.Source) {
	t.Helper()
	src := memsource.NewSource(cfg.IDAttributeName(), records...)
	m, err := e.syncer.Declare(name, cfg, src)
	require.NoError(t, err)
	return m, src
}

func book(id any, title string, published bool) *domain.MapRecord {
	return domain.NewMapRecord(map[string]any{"id": id, "title": title, "published": published})
}

func books(n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = book(i+1, "book", true)
	}
	return out
}

func publishedOnly() domain.IndexConfiguration {
	cfg := domain.DefaultIndexConfiguration()
	cfg.If = []domain.Condition{domain.OnAttribute("published")}
	return cfg
}
