package elasticsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeCluster answers with canned responses keyed by "METHOD /path" and
// records every request it sees.
type fakeCluster struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]func(body string) (int, string)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	respond, ok := f.responses[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`))
		return
	}
	status, out := respond(string(body))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(out))
}

func (f *fakeCluster) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newFakeEngine(t *testing.T, responses map[string]func(string) (int, string)) (*Engine, *fakeCluster) {
	t.Helper()
	fake := &fakeCluster{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	eng, err := New([]string{srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return eng, fake
}

func TestNew_RequiresAddresses(t *testing.T) {
	_, err := New(nil, slog.Default())
	assert.ErrorIs(t, err, apperrors.ErrNotConfigured)
}

func TestSynonymRule(t *testing.T) {
	assert.Equal(t, "blazer, coat, jacket",
		synonymRule(domain.Synonym{Synonyms: []string{"blazer", "coat", "jacket"}}))
	assert.Equal(t, "smart phone => smart phone, iphone, android",
		synonymRule(domain.Synonym{Root: "smart phone", Synonyms: []string{"iphone", "android"}}))
}

func TestBuildIndexBody(t *testing.T) {
	t.Run("wildcard schema maps strings dynamically", func(t *testing.T) {
		body := buildIndexBody(domain.CollectionSchema{Name: "books_1", Fields: []domain.Field{domain.AutoField}})
		mappings := body["mappings"].(map[string]any)
		assert.Equal(t, true, mappings["dynamic"])
		assert.Len(t, mappings["dynamic_templates"], 1)

		props := mappings["properties"].(map[string]any)
		assert.Equal(t, map[string]any{"type": "keyword"}, props["id"])
	})

	t.Run("declared fields and synonyms", func(t *testing.T) {
		body := buildIndexBody(domain.CollectionSchema{
			Name: "books_1",
			Fields: []domain.Field{
				{Name: "title", Type: "string"},
				{Name: "pages", Type: "int32"},
				{Name: "rating", Type: "float"},
			},
			TokenSeparators:     []string{"-"},
			DefaultSortingField: "pages",
			Synonyms:            []domain.Synonym{{Name: "s1", Synonyms: []string{"a", "b"}}},
		})
		mappings := body["mappings"].(map[string]any)
		assert.Equal(t, false, mappings["dynamic"])
		props := mappings["properties"].(map[string]any)
		assert.Equal(t, "text", props["title"].(map[string]any)["type"])
		assert.Equal(t, "long", props["pages"].(map[string]any)["type"])
		assert.Equal(t, "double", props["rating"].(map[string]any)["type"])
		assert.Equal(t, "pages", mappings["_meta"].(map[string]any)["default_sorting_field"])

		analysis := body["settings"].(map[string]any)["analysis"].(map[string]any)
		filter := analysis["filter"].(map[string]any)[synonymFilter].(map[string]any)
		assert.Equal(t, "books_1_synonyms", filter["synonyms_set"])
		assert.Contains(t, analysis, "char_filter")
	})
}

func TestBuildSearchQuery(t *testing.T) {
	q, err := buildSearchQuery(engine.SearchParams{
		Q:        "lamp",
		QueryBy:  "name, description",
		FilterBy: engine.IDFilter([]string{"1", "2"}),
		SortBy:   "_text_match:desc,price:asc",
	}, 3, 20)
	require.NoError(t, err)

	assert.Equal(t, 40, q["from"])
	assert.Equal(t, 20, q["size"])

	boolQuery := q["query"].(map[string]any)["bool"].(map[string]any)
	must := boolQuery["must"].([]any)[0].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, []string{"name", "description"}, must["fields"])
	assert.Equal(t, []any{idsQuery([]string{"1", "2"})}, boolQuery["filter"])
	assert.Equal(t, []any{map[string]any{"_score": "desc"}, map[string]any{"price": "asc"}}, q["sort"])

	all, err := buildSearchQuery(engine.SearchParams{Q: "*"}, 1, 10)
	require.NoError(t, err)
	mustAll := all["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)[0]
	assert.Equal(t, map[string]any{"match_all": map[string]any{}}, mustAll)

	_, err = buildSearchQuery(engine.SearchParams{Q: "x", FilterBy: "price:>10"}, 1, 10)
	assert.Error(t, err)
}

func TestEngine_GetAlias(t *testing.T) {
	eng, _ := newFakeEngine(t, map[string]func(string) (int, string){
		"GET /_alias/books": func(string) (int, string) {
			return http.StatusOK, `{"books_1700000000":{"aliases":{"books":{}}}}`
		},
	})
	ctx := context.Background()

	alias, err := eng.GetAlias(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, &engine.Alias{Name: "books", CollectionName: "books_1700000000"}, alias)

	_, err = eng.GetAlias(ctx, "authors")
	assert.True(t, apperrors.IsObjectNotFound(err))
}

func TestEngine_UpsertAlias_IsAtomicSwap(t *testing.T) {
	eng, fake := newFakeEngine(t, map[string]func(string) (int, string){
		"POST /_aliases": func(string) (int, string) { return http.StatusOK, `{"acknowledged":true}` },
	})

	require.NoError(t, eng.UpsertAlias(context.Background(), "books", "books_2"))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	var body struct {
		Actions []map[string]map[string]any `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &body))
	require.Len(t, body.Actions, 2)
	assert.Equal(t, "books", body.Actions[0]["remove"]["alias"])
	assert.Equal(t, "books_2", body.Actions[1]["add"]["index"])
}

func TestEngine_ImportDocuments_ChunksAndReportsFailures(t *testing.T) {
	eng, fake := newFakeEngine(t, map[string]func(string) (int, string){
		"POST /books_1/_bulk": func(body string) (int, string) {
			var items []string
			scanner := bufio.NewScanner(strings.NewReader(body))
			for i := 0; scanner.Scan(); i++ {
				if i%2 != 0 {
					continue
				}
				var action struct {
					Index struct {
						ID string `json:"_id"`
					} `json:"index"`
				}
				_ = json.Unmarshal(scanner.Bytes(), &action)
				if action.Index.ID == "3" {
					items = append(items, `{"index":{"_id":"3","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}`)
					continue
				}
				items = append(items, `{"index":{"_id":"`+action.Index.ID+`","status":201}}`)
			}
			return http.StatusOK, `{"errors":true,"items":[` + strings.Join(items, ",") + `]}`
		},
	})

	jsonl, err := domain.EncodeJSONL([]domain.Document{
		{"id": "1", "title": "a"},
		{"id": "2", "title": "b"},
		{"id": "3", "title": "c"},
	})
	require.NoError(t, err)
	jsonl = append(jsonl, []byte("\n{\"title\":\"no id\"}")...)

	result, err := eng.ImportDocuments(context.Background(), "books_1", jsonl, engine.ImportOptions{
		Action:    engine.ActionUpsert,
		BatchSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, fake.recorded(), 2)
}

func TestEngine_ImportDocuments_RejectsUnknownAction(t *testing.T) {
	eng, _ := newFakeEngine(t, nil)
	_, err := eng.ImportDocuments(context.Background(), "books_1", []byte(`{"id":"1"}`), engine.ImportOptions{Action: "emplace"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestEngine_DeleteDocument_NotFound(t *testing.T) {
	eng, _ := newFakeEngine(t, nil)
	err := eng.DeleteDocument(context.Background(), "books", "42")
	assert.True(t, apperrors.IsObjectNotFound(err))
}

func TestEngine_Search(t *testing.T) {
	eng, fake := newFakeEngine(t, map[string]func(string) (int, string){
		"POST /books/_search": func(string) (int, string) {
			return http.StatusOK, `{"took":3,"hits":{"total":{"value":11},"hits":[
				{"_id":"7","_source":{"title":"Dune"},"highlight":{"title":["<em>Dune</em>"]}}
			]}}`
		},
	})

	res, err := eng.Search(context.Background(), "books", engine.SearchParams{Q: "dune", QueryBy: "title", Page: 2, PerPage: 5})
	require.NoError(t, err)
	assert.Equal(t, 11, res.Found)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 5, res.PerPage)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, domain.Document{"id": "7", "title": "Dune"}, res.Hits[0].Document)
	assert.Equal(t, []engine.Highlight{{Field: "title", Snippet: "<em>Dune</em>"}}, res.Hits[0].Highlights)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.recorded()[0].Body), &sent))
	assert.EqualValues(t, 5, sent["from"])
}
