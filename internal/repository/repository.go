package repository

import (
	"context"

	"github.com/utafrali/searchsync/internal/domain"
)

// BatchFunc handles one page of records. Returning an error stops iteration
// and the error is returned unmodified by FindInBatches.
type BatchFunc func(ctx context.Context, batch []domain.Record) error

// Source is the read side of a model's system of record.
type Source interface {
	// FindInBatches walks every record in stable id order, size at a time.
	FindInBatches(ctx context.Context, size int, fn BatchFunc) error

	// FindByIDs returns the records matching ids. Missing ids are skipped and
	// the result order is unspecified.
	FindByIDs(ctx context.Context, ids []string) ([]domain.Record, error)

	// Find returns one record or an error matching apperrors.ErrNotFound.
	Find(ctx context.Context, id string) (domain.Record, error)
}
