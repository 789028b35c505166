package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/pkg/database"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

var bookColumns = []string{"id", "title", "published"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func newBookSource(t *testing.T, mock pgxmock.PgxPoolIface) *Source {
	t.Helper()
	src, err := NewSource(mock, "books", "", database.QueryTracer{})
	require.NoError(t, err)
	return src
}

func TestNewSource_RejectsUnsafeNames(t *testing.T) {
	mock := newMock(t)

	tests := []struct {
		name     string
		table    string
		idColumn string
	}{
		{"injection in table", "books; DROP TABLE books", "id"},
		{"too many parts", "a.b.c", "id"},
		{"empty table", "", "id"},
		{"bad id column", "books", "id--"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSource(mock, tt.table, tt.idColumn, database.QueryTracer{})
			assert.ErrorIs(t, err, apperrors.ErrBadConfiguration)
		})
	}

	_, err := NewSource(mock, "catalog.books", "isbn", database.QueryTracer{})
	assert.NoError(t, err)
}

func TestSource_FindInBatches_KeysetPages(t *testing.T) {
	mock := newMock(t)
	src := newBookSource(t, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "books" ORDER BY "id" LIMIT $1`)).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(bookColumns).
			AddRow(1, "Dune", true).
			AddRow(2, "Emma", false))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "books" WHERE "id" > $1 ORDER BY "id" LIMIT $2`)).
		WithArgs(2, 2).
		WillReturnRows(pgxmock.NewRows(bookColumns).
			AddRow(3, "Ulysses", true))

	var seen []any
	err := src.FindInBatches(context.Background(), 2, func(_ context.Context, batch []domain.Record) error {
		for _, rec := range batch {
			id, _ := rec.Attribute("id")
			seen = append(seen, id)
			assert.False(t, rec.IsNewRecord())
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_FindInBatches_FullLastPageEndsOnEmptyPage(t *testing.T) {
	mock := newMock(t)
	src := newBookSource(t, mock)

	mock.ExpectQuery(`SELECT \* FROM "books" ORDER BY`).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows(bookColumns).AddRow(1, "Dune", true))
	mock.ExpectQuery(`SELECT \* FROM "books" WHERE "id" >`).
		WithArgs(1, 1).
		WillReturnRows(pgxmock.NewRows(bookColumns))

	pages := 0
	err := src.FindInBatches(context.Background(), 1, func(context.Context, []domain.Record) error {
		pages++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_FindInBatches_PropagatesHandlerError(t *testing.T) {
	mock := newMock(t)
	src := newBookSource(t, mock)
	boom := errors.New("remote down")

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(500).
		WillReturnRows(pgxmock.NewRows(bookColumns).AddRow(1, "Dune", true))

	err := src.FindInBatches(context.Background(), 0, func(context.Context, []domain.Record) error {
		return boom
	})
	assert.Same(t, boom, err)
}

func TestSource_FindInBatches_QueryError(t *testing.T) {
	mock := newMock(t)
	src := newBookSource(t, mock)

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(10).
		WillReturnError(errors.New("connection reset"))

	err := src.FindInBatches(context.Background(), 10, func(context.Context, []domain.Record) error {
		t.Fatal("handler must not run")
		return nil
	})
	assert.ErrorContains(t, err, "connection reset")
}

func TestSource_FindByIDs(t *testing.T) {
	mock := newMock(t)
	src := newBookSource(t, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "books" WHERE "id"::text = ANY($1)`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(bookColumns).AddRow(3, "Ulysses", true))

	recs, err := src.FindByIDs(context.Background(), []string{"3", "99"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	title, _ := recs[0].Attribute("title")
	assert.Equal(t, "Ulysses", title)

	empty, err := src.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_Find(t *testing.T) {
	mock := newMock(t)
	src := newBookSource(t, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "books" WHERE "id"::text = $1`)).
		WithArgs("1").
		WillReturnRows(pgxmock.NewRows(bookColumns).AddRow(1, "Dune", true))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "books" WHERE "id"::text = $1`)).
		WithArgs("404").
		WillReturnRows(pgxmock.NewRows(bookColumns))

	rec, err := src.Find(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1, "title": "Dune", "published": true}, rec.Attributes())

	_, err = src.Find(context.Background(), "404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var productColumns = []string{"id", "name", "price", "tag_ids"}

func TestSource_UUIDAndNumericColumns(t *testing.T) {
	mock := newMock(t)
	src, err := NewSource(mock, "products", "", database.QueryTracer{})
	require.NoError(t, err)

	first := uuid.MustParse("12345678-9abc-def0-0102-030405060708")
	second := uuid.MustParse("22345678-9abc-def0-0102-030405060708")
	tag := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	price := pgtype.Numeric{Int: big.NewInt(1999), Exp: -2, Valid: true}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" ORDER BY "id" LIMIT $1`)).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow([16]byte(first), "Lamp", price, []any{[16]byte(tag)}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE "id" > $1 ORDER BY "id" LIMIT $2`)).
		WithArgs([16]byte(first), 1).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow([16]byte(second), "Desk", pgtype.Numeric{}, nil))

	cfg := domain.DefaultIndexConfiguration()
	var ids []string
	var docs []string
	err = src.FindInBatches(context.Background(), 1, func(_ context.Context, batch []domain.Record) error {
		for _, rec := range batch {
			ids = append(ids, cfg.ObjectID(rec))
			raw, err := json.Marshal(rec.Attributes())
			require.NoError(t, err)
			docs = append(docs, string(raw))
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{first.String(), second.String()}, ids)
	assert.JSONEq(t, `{"id":"12345678-9abc-def0-0102-030405060708","name":"Lamp","price":"19.99","tag_ids":["aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"]}`, docs[0])
	assert.JSONEq(t, `{"id":"22345678-9abc-def0-0102-030405060708","name":"Desk","price":null,"tag_ids":null}`, docs[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSource_FindByIDs_UUIDKeys(t *testing.T) {
	mock := newMock(t)
	src, err := NewSource(mock, "products", "", database.QueryTracer{})
	require.NoError(t, err)
	id := uuid.MustParse("12345678-9abc-def0-0102-030405060708")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE "id"::text = ANY($1)`)).
		WithArgs([]string{id.String()}).
		WillReturnRows(pgxmock.NewRows(productColumns).AddRow([16]byte(id), "Lamp", pgtype.Numeric{}, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE "id"::text = $1`)).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(productColumns).AddRow([16]byte(id), "Lamp", pgtype.Numeric{}, nil))

	recs, err := src.FindByIDs(context.Background(), []string{id.String()})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	got, _ := recs[0].Attribute("id")
	assert.Equal(t, id.String(), got)

	rec, err := src.Find(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, id.String(), domain.DefaultIndexConfiguration().ObjectID(rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}
