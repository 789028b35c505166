package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

const (
	defaultPerPage = 10
	maxPerPage     = 250
)

type collection struct {
	schema    domain.CollectionSchema
	docs      map[string]domain.Document
	synonyms  map[string]domain.Synonym
	createdAt time.Time
}

// Engine is an in-memory implementation of engine.Gateway with
// collections, aliases and id filters. Search is a case-insensitive
// substring match over the query_by fields. Thread-safe via sync.RWMutex.
type Engine struct {
	mu          sync.RWMutex
	collections map[string]*collection
	aliases     map[string]string
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		collections: make(map[string]*collection),
		aliases:     make(map[string]string),
	}
}

var _ engine.Gateway = (*Engine)(nil)

// resolve follows an alias to its collection. Caller must hold the lock.
func (e *Engine) resolve(name string) (string, *collection, error) {
	if target, ok := e.aliases[name]; ok {
		name = target
	}
	c, ok := e.collections[name]
	if !ok {
		return "", nil, apperrors.ObjectNotFound("collection", name)
	}
	return name, c, nil
}

// CreateCollection creates a collection and upserts the schema's synonyms.
func (e *Engine) CreateCollection(_ context.Context, schema domain.CollectionSchema) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.collections[schema.Name]; ok {
		return apperrors.Conflict(fmt.Sprintf("collection %q already exists", schema.Name))
	}
	c := &collection{
		schema:    schema,
		docs:      make(map[string]domain.Document),
		synonyms:  make(map[string]domain.Synonym),
		createdAt: time.Now(),
	}
	for _, syn := range schema.Synonyms {
		c.synonyms[syn.Name] = syn
	}
	e.collections[schema.Name] = c
	return nil
}

// GetCollection returns collection metadata by name or alias.
func (e *Engine) GetCollection(_ context.Context, name string) (*engine.CollectionInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	physical, c, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	return &engine.CollectionInfo{
		Name:         physical,
		NumDocuments: int64(len(c.docs)),
		CreatedAt:    c.createdAt.Unix(),
		Fields:       c.schema.Fields,
	}, nil
}

// DeleteCollection removes a collection by name or alias. Aliases pointing
// at it are left dangling, as remote engines do.
func (e *Engine) DeleteCollection(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	physical, _, err := e.resolve(name)
	if err != nil {
		return err
	}
	delete(e.collections, physical)
	return nil
}

// UpsertAlias points alias at an existing collection.
func (e *Engine) UpsertAlias(_ context.Context, alias, collectionName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.collections[collectionName]; !ok {
		return apperrors.ObjectNotFound("collection", collectionName)
	}
	e.aliases[alias] = collectionName
	return nil
}

// GetAlias returns the alias mapping.
func (e *Engine) GetAlias(_ context.Context, alias string) (*engine.Alias, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	target, ok := e.aliases[alias]
	if !ok {
		return nil, apperrors.ObjectNotFound("alias", alias)
	}
	return &engine.Alias{Name: alias, CollectionName: target}, nil
}

// UpsertDocument stores a copy of doc. dirtyValues is accepted and ignored.
func (e *Engine) UpsertDocument(_ context.Context, collectionName string, doc domain.Document, _ string) error {
	id := doc.ID()
	if domain.IsBlank(id) {
		return apperrors.InvalidInput("document has no id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return err
	}
	c.docs[id] = normalize(doc)
	return nil
}

// ImportDocuments upserts every JSON line. Lines that fail to decode or lack
// an id are reported as failed items.
func (e *Engine) ImportDocuments(_ context.Context, collectionName string, jsonl []byte, opts engine.ImportOptions) (*engine.ImportResult, error) {
	if opts.Action != "" && opts.Action != engine.ActionUpsert {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported import action %q", opts.Action))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return nil, err
	}

	result := &engine.ImportResult{}
	scanner := bufio.NewScanner(bytes.NewReader(jsonl))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var doc domain.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			result.Failed++
			result.Items = append(result.Items, engine.ImportItem{Error: err.Error(), Document: string(line)})
			continue
		}
		id := doc.ID()
		if domain.IsBlank(id) {
			result.Failed++
			result.Items = append(result.Items, engine.ImportItem{Error: "document has no id", Document: string(line)})
			continue
		}
		c.docs[id] = doc
		result.Success++
		result.Items = append(result.Items, engine.ImportItem{Success: true, ID: id})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read import batch: %w", err)
	}
	return result, nil
}

// RetrieveDocument returns a copy of the stored document.
func (e *Engine) RetrieveDocument(_ context.Context, collectionName, id string) (domain.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return nil, err
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, apperrors.ObjectNotFound("document", id)
	}
	return doc.WithID(id), nil
}

// DeleteDocument removes a document by id.
func (e *Engine) DeleteDocument(_ context.Context, collectionName, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return err
	}
	if _, ok := c.docs[id]; !ok {
		return apperrors.ObjectNotFound("document", id)
	}
	delete(c.docs, id)
	return nil
}

// DeleteByQuery supports id filters only.
func (e *Engine) DeleteByQuery(_ context.Context, collectionName, filterBy string) (int, error) {
	ids, err := engine.ParseIDFilter(filterBy)
	if err != nil {
		return 0, apperrors.InvalidInput(err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		if _, ok := c.docs[id]; ok {
			delete(c.docs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Search matches params.Q against the query_by fields. "*" or an empty
// query matches everything. Hits are ordered by id.
func (e *Engine) Search(_ context.Context, collectionName string, params engine.SearchParams) (*engine.SearchResult, error) {
	start := time.Now()

	var allowed map[string]struct{}
	if params.FilterBy != "" {
		ids, err := engine.ParseIDFilter(params.FilterBy)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		allowed = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(params.Q))
	fields := splitFields(params.QueryBy)

	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	hits := make([]engine.Hit, 0)
	for _, id := range ids {
		if allowed != nil {
			if _, ok := allowed[id]; !ok {
				continue
			}
		}
		doc := c.docs[id]
		highlights, ok := match(doc, query, fields)
		if !ok {
			continue
		}
		hits = append(hits, engine.Hit{Document: doc.WithID(id), Highlights: highlights})
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	total := len(hits)
	offset := (page - 1) * perPage
	if offset > total {
		offset = total
	}
	end := offset + perPage
	if end > total {
		end = total
	}

	return &engine.SearchResult{
		Found:        total,
		Page:         page,
		PerPage:      perPage,
		SearchTimeMs: time.Since(start).Milliseconds(),
		Hits:         hits[offset:end],
	}, nil
}

// UpsertSynonym stores a synonym set on the collection.
func (e *Engine) UpsertSynonym(_ context.Context, collectionName string, synonym domain.Synonym) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return err
	}
	c.synonyms[synonym.Name] = synonym
	return nil
}

// Synonyms returns the synonym sets of a collection, sorted by name.
func (e *Engine) Synonyms(collectionName string) []domain.Synonym {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, c, err := e.resolve(collectionName)
	if err != nil {
		return nil
	}
	out := make([]domain.Synonym, 0, len(c.synonyms))
	for _, s := range c.synonyms {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CollectionNames lists physical collections, sorted.
func (e *Engine) CollectionNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalize round-trips doc through JSON so stored values look the same
// whether they arrived by upsert or by import.
func normalize(doc domain.Document) domain.Document {
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc.WithID(doc.ID())
	}
	var out domain.Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc.WithID(doc.ID())
	}
	out[domain.IDField] = doc.ID()
	return out
}

func splitFields(queryBy string) []string {
	var fields []string
	for _, f := range strings.Split(queryBy, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// match reports whether any query_by field contains query.
func match(doc domain.Document, query string, fields []string) ([]engine.Highlight, bool) {
	if query == "" || query == "*" {
		return nil, true
	}
	var highlights []engine.Highlight
	for _, f := range fields {
		s, ok := doc[f].(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(s), query) {
			highlights = append(highlights, engine.Highlight{
				Field:         f,
				Snippet:       s,
				MatchedTokens: []string{query},
			})
		}
	}
	return highlights, len(highlights) > 0
}
