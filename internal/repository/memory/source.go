package memory

import (
	"context"
	"sync"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

// Source is an in-memory repository.Source over a fixed list of records.
// Records are paged in insertion order.
type Source struct {
	mu          sync.RWMutex
	idAttribute string
	records     []domain.Record
}

var _ repository.Source = (*Source)(nil)

// NewSource creates a source keyed by idAttribute ("id" when empty).
func NewSource(idAttribute string, records ...domain.Record) *Source {
	if idAttribute == "" {
		idAttribute = domain.IDField
	}
	return &Source{idAttribute: idAttribute, records: records}
}

// Add appends records.
func (s *Source) Add(records ...domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Delete drops every record with the given id.
func (s *Source) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, rec := range s.records {
		if s.idOf(rec) != id {
			kept = append(kept, rec)
		}
	}
	s.records = kept
}

func (s *Source) idOf(rec domain.Record) string {
	v, _ := rec.Attribute(s.idAttribute)
	return domain.Stringify(v)
}

func (s *Source) snapshot() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Record(nil), s.records...)
}

// FindInBatches implements repository.Source.
func (s *Source) FindInBatches(ctx context.Context, size int, fn repository.BatchFunc) error {
	if size <= 0 {
		size = domain.DefaultBatchSize
	}
	records := s.snapshot()
	for start := 0; start < len(records); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(records))
		if err := fn(ctx, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// FindByIDs implements repository.Source.
func (s *Source) FindByIDs(_ context.Context, ids []string) ([]domain.Record, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.Record
	for _, rec := range s.snapshot() {
		if _, ok := want[s.idOf(rec)]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Find implements repository.Source.
func (s *Source) Find(_ context.Context, id string) (domain.Record, error) {
	for _, rec := range s.snapshot() {
		if s.idOf(rec) == id {
			return rec, nil
		}
	}
	return nil, apperrors.NotFound("record", id)
}
