package elasticsearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

// Engine is an Elasticsearch-backed implementation of engine.Gateway.
// Collections are indices, aliases are index aliases and imports go through
// the bulk API.
type Engine struct {
	client *elasticsearch.Client
	logger *slog.Logger
}

var _ engine.Gateway = (*Engine)(nil)

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Source    domain.Document     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch gateway connected to the given URLs.
func New(addresses []string, logger *slog.Logger) (*Engine, error) {
	if len(addresses) == 0 {
		return nil, apperrors.NotConfigured("elasticsearch addresses must be set")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}
	return &Engine{client: client, logger: logger}, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// responseError converts an error response into the gateway's error kinds.
func responseError(res *esapi.Response, op, kind, name string) error {
	var errResp esErrorResponse
	reason := res.Status()
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		reason = errResp.Error.Type + ": " + errResp.Error.Reason
	}

	switch res.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("elasticsearch %s: %w", op, apperrors.ObjectNotFound(kind, name))
	case http.StatusBadRequest:
		if errResp.Error.Type == "resource_already_exists_exception" {
			return fmt.Errorf("elasticsearch %s: %w", op, apperrors.Conflict(reason))
		}
		return fmt.Errorf("elasticsearch %s: %w", op, apperrors.InvalidInput(reason))
	case http.StatusConflict:
		return fmt.Errorf("elasticsearch %s: %w", op, apperrors.Conflict(reason))
	default:
		return fmt.Errorf("elasticsearch %s: %s", op, reason)
	}
}

func encode(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// CreateCollection creates an index from schema. When the schema carries
// synonyms their set is written first, since the search analyzer refers to it.
func (e *Engine) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	if len(schema.Synonyms) > 0 {
		rules := make([]map[string]string, 0, len(schema.Synonyms))
		for _, s := range schema.Synonyms {
			rules = append(rules, map[string]string{"id": s.Name, "synonyms": synonymRule(s)})
		}
		path := "/_synonyms/" + url.PathEscape(synonymSetID(schema.Name))
		if err := e.perform(ctx, http.MethodPut, path, map[string]any{"synonyms_set": rules}, "synonyms set", schema.Name); err != nil {
			return err
		}
	}

	body, err := encode(buildIndexBody(schema))
	if err != nil {
		return fmt.Errorf("elasticsearch create index: encode mapping: %w", err)
	}
	res, err := e.client.Indices.Create(
		schema.Name,
		e.client.Indices.Create.WithBody(body),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(res, "create index", "collection", schema.Name)
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", schema.Name))
	return nil
}

// GetCollection resolves name (an index or alias) to its concrete index.
func (e *Engine) GetCollection(ctx context.Context, name string) (*engine.CollectionInfo, error) {
	res, err := e.client.Indices.Get(
		[]string{name},
		e.client.Indices.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError(res, "get index", "collection", name)
	}

	var indices map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("elasticsearch get index: decode response: %w", err)
	}
	if len(indices) != 1 {
		return nil, fmt.Errorf("elasticsearch get index: %s resolves to %d indices", name, len(indices))
	}
	var physical string
	for k := range indices {
		physical = k
	}

	count, err := e.count(ctx, physical)
	if err != nil {
		return nil, err
	}
	return &engine.CollectionInfo{Name: physical, NumDocuments: count}, nil
}

func (e *Engine) count(ctx context.Context, index string) (int64, error) {
	res, err := e.client.Count(
		e.client.Count.WithIndex(index),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return 0, responseError(res, "count", "collection", index)
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("elasticsearch count: decode response: %w", err)
	}
	return body.Count, nil
}

// DeleteCollection deletes the index name refers to. Elasticsearch refuses
// to delete through an alias, so the name is resolved first.
func (e *Engine) DeleteCollection(ctx context.Context, name string) error {
	info, err := e.GetCollection(ctx, name)
	if err != nil {
		return err
	}

	res, err := e.client.Indices.Delete(
		[]string{info.Name},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(res, "delete index", "collection", info.Name)
	}

	e.logger.InfoContext(ctx, "elasticsearch index deleted", slog.String("index", info.Name))
	return nil
}

// UpsertAlias moves alias onto collection in one atomic _aliases call.
func (e *Engine) UpsertAlias(ctx context.Context, alias, collection string) error {
	body, err := encode(map[string]any{
		"actions": []any{
			map[string]any{"remove": map[string]any{"index": "*", "alias": alias, "must_exist": false}},
			map[string]any{"add": map[string]any{"index": collection, "alias": alias}},
		},
	})
	if err != nil {
		return fmt.Errorf("elasticsearch update aliases: encode: %w", err)
	}

	res, err := e.client.Indices.UpdateAliases(
		body,
		e.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch update aliases: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(res, "update aliases", "collection", collection)
	}
	return nil
}

// GetAlias returns the index alias currently points at.
func (e *Engine) GetAlias(ctx context.Context, alias string) (*engine.Alias, error) {
	res, err := e.client.Indices.GetAlias(
		e.client.Indices.GetAlias.WithName(alias),
		e.client.Indices.GetAlias.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError(res, "get alias", "alias", alias)
	}

	var indices map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: decode response: %w", err)
	}
	for index := range indices {
		return &engine.Alias{Name: alias, CollectionName: index}, nil
	}
	return nil, apperrors.ObjectNotFound("alias", alias)
}

// UpsertDocument indexes one document. dirtyValues has no Elasticsearch
// equivalent and is ignored.
func (e *Engine) UpsertDocument(ctx context.Context, collection string, doc domain.Document, _ string) error {
	body, err := encode(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		collection,
		body,
		e.client.Index.WithDocumentID(doc.ID()),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(res, "index", "collection", collection)
	}

	e.logger.DebugContext(ctx, "indexed document", slog.String("id", doc.ID()), slog.String("index", collection))
	return nil
}

// ImportDocuments converts JSONL into bulk NDJSON, one request per
// opts.BatchSize documents. Lines that are not valid documents and per-item
// bulk errors are reported as failed items.
func (e *Engine) ImportDocuments(ctx context.Context, collection string, jsonl []byte, opts engine.ImportOptions) (*engine.ImportResult, error) {
	if opts.Action != "" && opts.Action != engine.ActionUpsert {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported import action %q", opts.Action))
	}

	result := &engine.ImportResult{}
	var pending []domain.Document

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		part, err := e.bulk(ctx, collection, pending)
		if err != nil {
			return err
		}
		result.Add(part)
		pending = pending[:0]
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(jsonl))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var doc domain.Document
		if err := json.Unmarshal(line, &doc); err != nil || domain.IsBlank(doc.ID()) {
			reason := "document has no id"
			if err != nil {
				reason = err.Error()
			}
			result.Failed++
			result.Items = append(result.Items, engine.ImportItem{Error: reason, Document: string(line)})
			continue
		}
		pending = append(pending, doc)
		if opts.BatchSize > 0 && len(pending) >= opts.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: read batch: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "bulk imported documents",
		slog.String("index", collection),
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (e *Engine) bulk(ctx context.Context, collection string, docs []domain.Document) (*engine.ImportResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]any{
			"index": map[string]any{"_index": collection, "_id": doc.ID()},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(collection),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError(res, "bulk", "collection", collection)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	result := &engine.ImportResult{}
	for _, item := range bulkResp.Items {
		if item.Index.Error.Type != "" {
			result.Failed++
			result.Items = append(result.Items, engine.ImportItem{
				ID:    item.Index.ID,
				Error: item.Index.Error.Type + ": " + item.Index.Error.Reason,
			})
			continue
		}
		result.Success++
		result.Items = append(result.Items, engine.ImportItem{Success: true, ID: item.Index.ID})
	}
	return result, nil
}

// RetrieveDocument fetches a document's source.
func (e *Engine) RetrieveDocument(ctx context.Context, collection, id string) (domain.Document, error) {
	res, err := e.client.Get(collection, id, e.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError(res, "get", "document", id)
	}

	var body struct {
		Source domain.Document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	return body.Source.WithID(id), nil
}

// DeleteDocument removes a document. A missing document is ObjectNotFound.
func (e *Engine) DeleteDocument(ctx context.Context, collection, id string) error {
	res, err := e.client.Delete(
		collection,
		id,
		e.client.Delete.WithRefresh("true"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(res, "delete", "document", id)
	}

	e.logger.DebugContext(ctx, "deleted document", slog.String("id", id), slog.String("index", collection))
	return nil
}

// DeleteByQuery translates an id filter into an ids query.
func (e *Engine) DeleteByQuery(ctx context.Context, collection, filterBy string) (int, error) {
	ids, err := engine.ParseIDFilter(filterBy)
	if err != nil {
		return 0, apperrors.InvalidInput(err.Error())
	}
	if len(ids) == 0 {
		return 0, nil
	}

	body, err := encode(map[string]any{"query": idsQuery(ids)})
	if err != nil {
		return 0, fmt.Errorf("elasticsearch delete by query: encode: %w", err)
	}
	res, err := e.client.DeleteByQuery(
		[]string{collection},
		body,
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch delete by query: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return 0, responseError(res, "delete by query", "collection", collection)
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("elasticsearch delete by query: decode response: %w", err)
	}
	return out.Deleted, nil
}

func idsQuery(ids []string) map[string]any {
	return map[string]any{"ids": map[string]any{"values": ids}}
}

// Search runs a multi_match over the query_by fields.
func (e *Engine) Search(ctx context.Context, collection string, params engine.SearchParams) (*engine.SearchResult, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 {
		perPage = 10
	}

	query, err := buildSearchQuery(params, page, perPage)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	body, err := encode(query)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(collection),
		e.client.Search.WithBody(body),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError(res, "search", "collection", collection)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]engine.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hit := engine.Hit{Document: h.Source.WithID(h.ID)}
		for field, snippets := range h.Highlight {
			if len(snippets) > 0 {
				hit.Highlights = append(hit.Highlights, engine.Highlight{Field: field, Snippet: snippets[0]})
			}
		}
		hits = append(hits, hit)
	}

	return &engine.SearchResult{
		Found:        esResp.Hits.Total.Value,
		Page:         page,
		PerPage:      perPage,
		SearchTimeMs: esResp.Took,
		Hits:         hits,
	}, nil
}

// buildSearchQuery constructs the query DSL. filter_by supports id filters
// only; sort_by accepts "field:asc,field:desc".
func buildSearchQuery(params engine.SearchParams, page, perPage int) (map[string]any, error) {
	fields := make([]string, 0)
	for _, f := range strings.Split(params.QueryBy, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	var must any
	if q := strings.TrimSpace(params.Q); q == "" || q == "*" {
		must = map[string]any{"match_all": map[string]any{}}
	} else {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":     q,
				"fields":    fields,
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		}
	}

	boolQuery := map[string]any{"must": []any{must}}
	if params.FilterBy != "" {
		ids, err := engine.ParseIDFilter(params.FilterBy)
		if err != nil {
			return nil, err
		}
		boolQuery["filter"] = []any{idsQuery(ids)}
	}

	query := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"from":  (page - 1) * perPage,
		"size":  perPage,
	}

	if len(fields) > 0 {
		highlight := make(map[string]any, len(fields))
		for _, f := range fields {
			highlight[f] = map[string]any{}
		}
		query["highlight"] = map[string]any{"fields": highlight}
	}

	if params.SortBy != "" {
		var sorts []any
		for _, clause := range strings.Split(params.SortBy, ",") {
			field, order, _ := strings.Cut(strings.TrimSpace(clause), ":")
			if order == "" {
				order = "asc"
			}
			if field == "_text_match" {
				field = "_score"
			}
			sorts = append(sorts, map[string]any{field: order})
		}
		query["sort"] = sorts
	}
	return query, nil
}

// UpsertSynonym writes one rule into the collection's synonyms set.
func (e *Engine) UpsertSynonym(ctx context.Context, collection string, synonym domain.Synonym) error {
	path := "/_synonyms/" + url.PathEscape(synonymSetID(collection)) + "/" + url.PathEscape(synonym.Name)
	return e.perform(ctx, http.MethodPut, path, map[string]string{"synonyms": synonymRule(synonym)}, "synonym", synonym.Name)
}

// perform sends a raw JSON request through the client transport for APIs
// without a typed wrapper in use here.
func (e *Engine) perform(ctx context.Context, method, path string, payload any, kind, name string) error {
	body, err := encode(payload)
	if err != nil {
		return fmt.Errorf("elasticsearch %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("elasticsearch %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Perform(req)
	if err != nil {
		return fmt.Errorf("elasticsearch %s: %w", path, err)
	}
	res := &esapi.Response{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(res, method+" "+path, kind, name)
	}
	return nil
}
