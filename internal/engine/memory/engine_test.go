package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

func newCollection(t *testing.T, eng *Engine, name string) {
	t.Helper()
	require.NoError(t, eng.CreateCollection(context.Background(), domain.CollectionSchema{
		Name:   name,
		Fields: []domain.Field{domain.AutoField},
	}))
}

func TestEngine_CollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	eng := New()

	_, err := eng.GetCollection(ctx, "books")
	assert.True(t, apperrors.IsObjectNotFound(err))

	newCollection(t, eng, "books_1")
	err = eng.CreateCollection(ctx, domain.CollectionSchema{Name: "books_1"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, eng.UpsertAlias(ctx, "books", "books_1"))
	info, err := eng.GetCollection(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, "books_1", info.Name)

	alias, err := eng.GetAlias(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, "books_1", alias.CollectionName)

	require.NoError(t, eng.DeleteCollection(ctx, "books"))
	_, err = eng.GetCollection(ctx, "books")
	assert.True(t, apperrors.IsObjectNotFound(err))
	assert.Empty(t, eng.CollectionNames())
}

func TestEngine_UpsertAlias_UnknownCollection(t *testing.T) {
	err := New().UpsertAlias(context.Background(), "books", "missing")
	assert.True(t, apperrors.IsObjectNotFound(err))
}

func TestEngine_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := New()
	newCollection(t, eng, "books_1")
	require.NoError(t, eng.UpsertAlias(ctx, "books", "books_1"))

	doc := domain.Document{"id": "1", "name": "Lamp"}
	require.NoError(t, eng.UpsertDocument(ctx, "books", doc, ""))
	require.NoError(t, eng.UpsertDocument(ctx, "books", doc, ""))

	info, err := eng.GetCollection(ctx, "books")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.NumDocuments)

	got, err := eng.RetrieveDocument(ctx, "books", "1")
	require.NoError(t, err)
	assert.Equal(t, domain.Document{"id": "1", "name": "Lamp"}, got)

	err = eng.UpsertDocument(ctx, "books", domain.Document{"name": "no id"}, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestEngine_ImportDocuments(t *testing.T) {
	ctx := context.Background()
	eng := New()
	newCollection(t, eng, "books_1")

	jsonl := []byte(`{"id":"1","name":"a"}` + "\n" + `{"name":"no id"}` + "\n\n" + `not json` + "\n" + `{"id":"2","name":"b"}`)
	res, err := eng.ImportDocuments(ctx, "books_1", jsonl, engine.ImportOptions{Action: engine.ActionUpsert})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 2, res.Failed)

	_, err = eng.ImportDocuments(ctx, "books_1", jsonl, engine.ImportOptions{Action: "delete"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = eng.ImportDocuments(ctx, "missing", jsonl, engine.ImportOptions{})
	assert.True(t, apperrors.IsObjectNotFound(err))
}

func TestEngine_DeleteDocument_NotFound(t *testing.T) {
	ctx := context.Background()
	eng := New()
	newCollection(t, eng, "books_1")

	err := eng.DeleteDocument(ctx, "books_1", "404")
	require.Error(t, err)
	assert.True(t, apperrors.IsObjectNotFound(err))
}

func TestEngine_DeleteByQuery(t *testing.T) {
	ctx := context.Background()
	eng := New()
	newCollection(t, eng, "books_1")
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, eng.UpsertDocument(ctx, "books_1", domain.Document{"id": id}, ""))
	}

	n, err := eng.DeleteByQuery(ctx, "books_1", engine.IDFilter([]string{"1", "3", "9"}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = eng.RetrieveDocument(ctx, "books_1", "2")
	assert.NoError(t, err)

	_, err = eng.DeleteByQuery(ctx, "books_1", "price:>10")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestEngine_Search(t *testing.T) {
	ctx := context.Background()
	eng := New()
	newCollection(t, eng, "books_1")
	docs := []domain.Document{
		{"id": "1", "name": "Wireless Headphones", "description": "bluetooth"},
		{"id": "2", "name": "Desk Lamp", "description": "warm light"},
		{"id": "3", "name": "Bluetooth Speaker", "description": "portable"},
	}
	for _, d := range docs {
		require.NoError(t, eng.UpsertDocument(ctx, "books_1", d, ""))
	}

	res, err := eng.Search(ctx, "books_1", engine.SearchParams{Q: "BLUETOOTH", QueryBy: "name, description"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "1", res.Hits[0].Document.ID())
	assert.Equal(t, "description", res.Hits[0].Highlights[0].Field)
	assert.Equal(t, "3", res.Hits[1].Document.ID())

	res, err = eng.Search(ctx, "books_1", engine.SearchParams{Q: "*", Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Found)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "3", res.Hits[0].Document.ID())

	res, err = eng.Search(ctx, "books_1", engine.SearchParams{Q: "*", FilterBy: "id: [2]"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "2", res.Hits[0].Document.ID())

	res, err = eng.Search(ctx, "books_1", engine.SearchParams{Q: "*", Page: 9})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestEngine_Synonyms(t *testing.T) {
	ctx := context.Background()
	eng := New()
	require.NoError(t, eng.CreateCollection(ctx, domain.CollectionSchema{
		Name:     "books_1",
		Synonyms: []domain.Synonym{{Name: "phones", Synonyms: []string{"phone", "mobile"}}},
	}))
	require.NoError(t, eng.UpsertSynonym(ctx, "books_1", domain.Synonym{Name: "tv", Root: "television", Synonyms: []string{"tv"}}))

	syns := eng.Synonyms("books_1")
	require.Len(t, syns, 2)
	assert.Equal(t, "phones", syns[0].Name)
	assert.True(t, syns[1].IsOneWay())
}
