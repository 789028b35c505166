package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	"github.com/utafrali/searchsync/pkg/pagination"
)

// RawSearch queries the model's index and returns the engine response.
// Page defaults to 1.
func (m *Model) RawSearch(ctx context.Context, q, queryBy string, params engine.SearchParams) (*engine.SearchResult, error) {
	b, err := m.EnsureBinding(ctx, true)
	if err != nil {
		return nil, err
	}

	params.Q = q
	params.QueryBy = queryBy
	if params.Page <= 0 {
		params.Page = 1
	}
	res, err := m.syncer.gateway.Search(ctx, b.AliasName, params)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", m.name, err)
	}

	m.log(ctx).DebugContext(ctx, "search executed",
		slog.String("q", q),
		slog.Int("found", res.Found),
		slog.Int64("took_ms", res.SearchTimeMs),
	)
	return res, nil
}

// Search runs RawSearch and loads the matching records from the source in
// hit order. Hits whose record no longer exists are dropped; the total keeps
// the engine's count.
func (m *Model) Search(ctx context.Context, q, queryBy string, params engine.SearchParams) (*pagination.Result[domain.Record], error) {
	if err := m.requireSource(); err != nil {
		return nil, err
	}
	res, err := m.RawSearch(ctx, q, queryBy, params)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.Document.ID())
	}

	var recs []domain.Record
	if len(ids) > 0 {
		recs, err = m.source.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("search %s: load records: %w", m.name, err)
		}
	}

	byID := make(map[string]domain.Record, len(recs))
	for _, rec := range recs {
		byID[m.cfg.ObjectID(rec)] = rec
	}
	ordered := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}

	page := pagination.Params{Page: res.Page, PerPage: res.PerPage}
	result := pagination.NewResult(ordered, res.Found, page)
	return &result, nil
}

// RetrieveDocument fetches one indexed document by id.
func (m *Model) RetrieveDocument(ctx context.Context, id string) (domain.Document, error) {
	b, err := m.EnsureBinding(ctx, false)
	if err != nil {
		return nil, err
	}
	doc, err := m.syncer.gateway.RetrieveDocument(ctx, b.AliasName, id)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s %s: %w", m.name, id, err)
	}
	return doc, nil
}

// IndexInfo describes the model's current index.
type IndexInfo struct {
	Model        string `json:"model"`
	Alias        string `json:"alias"`
	Collection   string `json:"collection"`
	NumDocuments int64  `json:"num_documents"`
}

// Info describes the current index without creating it.
func (m *Model) Info(ctx context.Context) (*IndexInfo, error) {
	b, err := m.EnsureBinding(ctx, false)
	if err != nil {
		return nil, err
	}
	info, err := m.syncer.gateway.GetCollection(ctx, b.AliasName)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", m.name, err)
	}
	return &IndexInfo{
		Model:        m.name,
		Alias:        b.AliasName,
		Collection:   info.Name,
		NumDocuments: info.NumDocuments,
	}, nil
}

// NumDocuments returns how many documents the current index holds.
func (m *Model) NumDocuments(ctx context.Context) (int64, error) {
	info, err := m.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.NumDocuments, nil
}
