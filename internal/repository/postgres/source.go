package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
	"github.com/utafrali/searchsync/pkg/database"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/validator"
)

// Source implements repository.Source over one PostgreSQL table. Rows are
// returned as *domain.MapRecord keyed by column name and paged with keyset
// pagination on the id column.
type Source struct {
	db       database.DBTX
	tracer   database.QueryTracer
	table    string
	idColumn string
	idName   string
}

var _ repository.Source = (*Source)(nil)

// NewSource creates a source reading table (optionally schema-qualified)
// keyed by idColumn ("id" when empty). Both names must be plain identifiers.
func NewSource(db database.DBTX, table, idColumn string, tracer database.QueryTracer) (*Source, error) {
	if idColumn == "" {
		idColumn = domain.IDField
	}
	parts := strings.Split(table, ".")
	for _, p := range parts {
		if !validator.IsIdentifier(p) {
			return nil, apperrors.BadConfiguration(fmt.Sprintf("invalid table name %q", table))
		}
	}
	if len(parts) > 2 {
		return nil, apperrors.BadConfiguration(fmt.Sprintf("invalid table name %q", table))
	}
	if !validator.IsIdentifier(idColumn) {
		return nil, apperrors.BadConfiguration(fmt.Sprintf("invalid id column %q", idColumn))
	}

	return &Source{
		db:       db,
		tracer:   tracer,
		table:    pgx.Identifier(parts).Sanitize(),
		idColumn: pgx.Identifier{idColumn}.Sanitize(),
		idName:   idColumn,
	}, nil
}

// FindInBatches implements repository.Source. Each page is fetched after the
// previous one was handled, so at most size rows are held at once.
func (s *Source) FindInBatches(ctx context.Context, size int, fn repository.BatchFunc) (err error) {
	if size <= 0 {
		size = domain.DefaultBatchSize
	}

	first := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s LIMIT $1`, s.table, s.idColumn)
	next := fmt.Sprintf(`SELECT * FROM %s WHERE %s > $1 ORDER BY %s LIMIT $2`, s.table, s.idColumn, s.idColumn)

	var lastID any
	for page := 0; ; page++ {
		var rows []map[string]any
		if page == 0 {
			rows, err = s.query(ctx, "FindInBatches", first, size)
		} else {
			rows, err = s.query(ctx, "FindInBatches", next, lastID, size)
		}
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		// The cursor keeps the driver's value so the comparison stays typed.
		lastID = rows[len(rows)-1][s.idName]
		batch := make([]domain.Record, len(rows))
		for i, row := range rows {
			batch[i] = domain.NewMapRecord(normalizeRow(row))
		}

		if err := fn(ctx, batch); err != nil {
			return err
		}
		if len(rows) < size {
			return nil
		}
	}
}

// FindByIDs implements repository.Source. Ids are compared as text so the
// same call works for integer and uuid keys; uuid ids are matched in their
// canonical lowercase form, which is how records report them.
func (s *Source) FindByIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s::text = ANY($1)`, s.table, s.idColumn)
	rows, err := s.query(ctx, "FindByIDs", query, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, len(rows))
	for i, row := range rows {
		out[i] = domain.NewMapRecord(normalizeRow(row))
	}
	return out, nil
}

// Find implements repository.Source.
func (s *Source) Find(ctx context.Context, id string) (_ domain.Record, err error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s::text = $1`, s.table, s.idColumn)
	ctx, end := s.tracer.TraceQuery(ctx, "Find", query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("record", id)
		}
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
	}
	return domain.NewMapRecord(normalizeRow(row)), nil
}

func (s *Source) query(ctx context.Context, op, query string, args ...any) (_ []map[string]any, err error) {
	ctx, end := s.tracer.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
	}
	return out, nil
}

// normalizeRow replaces driver values that have no usable string or JSON
// form: uuid columns arrive as [16]byte and numeric columns as
// pgtype.Numeric. Both become their canonical text. Arrays are converted
// element by element.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		row[k] = normalizeValue(v)
	}
	return row
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		text, err := t.Value()
		if err != nil {
			return nil
		}
		return text
	case []any:
		for i, e := range t {
			t[i] = normalizeValue(e)
		}
		return t
	default:
		return v
	}
}
