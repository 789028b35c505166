package service

import (
	"context"

	"github.com/utafrali/searchsync/internal/dirty"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/scope"
)

const (
	opIndex  = "index"
	opRemove = "remove"
)

// AfterValidation records whether the pending save makes rec dirty. Once a
// record is judged dirty it stays dirty until the commit is handled.
func (m *Model) AfterValidation(rec domain.Record, st *dirty.State) {
	st.MarkMustReindex(func() bool {
		return rec.IsNewRecord() || m.MustReindex(rec)
	})
}

// BeforeSave arms st for indexing at commit time.
func (m *Model) BeforeSave(st *dirty.State) {
	if m.cfg.AutoIndex {
		st.Arm()
	}
}

// AfterCommit dispatches an index of rec when st was armed and the record
// was not judged clean. st is reset in every case.
func (m *Model) AfterCommit(ctx context.Context, rec domain.Record, st *dirty.State) error {
	defer st.Reset()

	if !m.cfg.AutoIndex || !st.Armed() {
		return nil
	}
	if must, known := st.MustReindex(); known && !must {
		return nil
	}
	return m.dispatch(ctx, rec, false)
}

// AfterDestroy dispatches removal of rec.
func (m *Model) AfterDestroy(ctx context.Context, rec domain.Record) error {
	if !m.cfg.AutoRemove {
		return nil
	}
	return m.dispatch(ctx, rec, true)
}

// WithoutAutoIndex runs fn with lifecycle indexing of this model suppressed.
func (m *Model) WithoutAutoIndex(ctx context.Context, fn func(ctx context.Context) error) error {
	return scope.Run(ctx, m.name, fn)
}

func (m *Model) dispatch(ctx context.Context, rec domain.Record, remove bool) error {
	op := opIndex
	if remove {
		op = opRemove
	}
	if scope.Suppressed(ctx, m.name) {
		dispatches.WithLabelValues(m.name, op, "suppressed").Inc()
		return nil
	}
	if m.cfg.IndexingDisabled() {
		dispatches.WithLabelValues(m.name, op, "disabled").Inc()
		return nil
	}

	if m.cfg.Enqueue != nil {
		dispatches.WithLabelValues(m.name, op, "enqueue").Inc()
		return m.cfg.Enqueue(ctx, rec, remove)
	}

	dispatches.WithLabelValues(m.name, op, "inline").Inc()
	if remove {
		return m.Remove(ctx, rec)
	}
	return m.Index(ctx, rec)
}
