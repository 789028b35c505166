// Package typesense implements engine.Gateway over the Typesense REST API.
package typesense

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/httpclient"
)

const (
	serviceName  = "typesense"
	apiKeyHeader = "X-TYPESENSE-API-KEY"
)

// Doer executes HTTP requests. *httpclient.Client and
// *httpclient.CircuitBreakerClient both satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds the connection settings.
type Config struct {
	URL    string
	APIKey string
}

// Client talks to one Typesense cluster. Batch imports go through a separate
// transport whose timeout is sized for a whole page of documents.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    Doer
	bulk    Doer
	logger  *slog.Logger
}

var _ engine.Gateway = (*Client)(nil)

// New creates a client. It fails with NOT_CONFIGURED when the URL or API key
// is missing.
func New(cfg Config, api, bulk Doer, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, apperrors.NotConfigured("typesense URL and API key must be set")
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.BadConfiguration(fmt.Sprintf("invalid typesense URL %q", cfg.URL))
	}
	if bulk == nil {
		bulk = api
	}
	return &Client{baseURL: u, apiKey: cfg.APIKey, http: api, bulk: bulk, logger: logger}, nil
}

// NewWithDefaults builds the request transport with retries behind a circuit
// breaker, and an import transport with a one-hour timeout and no retries.
func NewWithDefaults(cfg Config, logger *slog.Logger) (*Client, error) {
	api := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig(serviceName),
		logger,
	)
	bulk := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.ImportConfig()),
		httpclient.DefaultCircuitBreakerConfig(serviceName+"-import"),
		logger,
	)
	return New(cfg, api, bulk, logger)
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.baseURL
	base, rawBase := strings.TrimRight(u.Path, "/"), strings.TrimRight(u.EscapedPath(), "/")
	u.Path = base + "/" + strings.Join(segments, "/")
	u.RawPath = rawBase + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a request and decodes a JSON response into out. A *[]byte out
// receives the raw body. Non-2xx responses are translated by
// httpclient.ParseResponseError.
func (c *Client) do(ctx context.Context, doer Doer, method, target string, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := doer.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	switch o := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
	case *[]byte:
		if *o, err = io.ReadAll(resp.Body); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, target string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	return c.do(ctx, c.http, method, target, body, "application/json", out)
}

// CreateCollection creates the collection, then upserts the schema synonyms.
func (c *Client) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, "collections"), schema, nil); err != nil {
		return fmt.Errorf("typesense create collection %s: %w", schema.Name, err)
	}
	c.logger.InfoContext(ctx, "collection created", slog.String("collection", schema.Name))

	for _, syn := range schema.Synonyms {
		if err := c.UpsertSynonym(ctx, schema.Name, syn); err != nil {
			return err
		}
	}
	return nil
}

type collectionResponse struct {
	Name         string         `json:"name"`
	NumDocuments int64          `json:"num_documents"`
	CreatedAt    int64          `json:"created_at"`
	Fields       []domain.Field `json:"fields"`
}

// GetCollection retrieves a collection by name or alias.
func (c *Client) GetCollection(ctx context.Context, name string) (*engine.CollectionInfo, error) {
	var resp collectionResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "collections", name), nil, &resp); err != nil {
		return nil, fmt.Errorf("typesense get collection %s: %w", name, err)
	}
	return &engine.CollectionInfo{
		Name:         resp.Name,
		NumDocuments: resp.NumDocuments,
		CreatedAt:    resp.CreatedAt,
		Fields:       resp.Fields,
	}, nil
}

// DeleteCollection deletes a collection by name or alias.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if err := c.doJSON(ctx, http.MethodDelete, c.endpoint(nil, "collections", name), nil, nil); err != nil {
		return fmt.Errorf("typesense delete collection %s: %w", name, err)
	}
	return nil
}

// UpsertAlias points alias at collection.
func (c *Client) UpsertAlias(ctx context.Context, alias, collection string) error {
	body := map[string]string{"collection_name": collection}
	if err := c.doJSON(ctx, http.MethodPut, c.endpoint(nil, "aliases", alias), body, nil); err != nil {
		return fmt.Errorf("typesense upsert alias %s: %w", alias, err)
	}
	return nil
}

// GetAlias retrieves an alias.
func (c *Client) GetAlias(ctx context.Context, alias string) (*engine.Alias, error) {
	var resp engine.Alias
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "aliases", alias), nil, &resp); err != nil {
		return nil, fmt.Errorf("typesense get alias %s: %w", alias, err)
	}
	return &resp, nil
}

// UpsertDocument creates or replaces one document.
func (c *Client) UpsertDocument(ctx context.Context, collection string, doc domain.Document, dirtyValues string) error {
	q := url.Values{"action": {engine.ActionUpsert}}
	if dirtyValues != "" {
		q.Set("dirty_values", dirtyValues)
	}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(q, "collections", collection, "documents"), doc, nil); err != nil {
		return fmt.Errorf("typesense upsert document %s: %w", doc.ID(), err)
	}
	return nil
}

// ImportDocuments sends a JSONL batch over the import transport. The
// response carries one JSON line per document.
func (c *Client) ImportDocuments(ctx context.Context, collection string, jsonl []byte, opts engine.ImportOptions) (*engine.ImportResult, error) {
	action := opts.Action
	if action == "" {
		action = engine.ActionUpsert
	}
	q := url.Values{"action": {action}}
	if opts.BatchSize > 0 {
		q.Set("batch_size", strconv.Itoa(opts.BatchSize))
	}

	var raw []byte
	target := c.endpoint(q, "collections", collection, "documents", "import")
	if err := c.do(ctx, c.bulk, http.MethodPost, target, jsonl, "text/plain", &raw); err != nil {
		return nil, fmt.Errorf("typesense import into %s: %w", collection, err)
	}
	return parseImportResponse(raw)
}

func parseImportResponse(body []byte) (*engine.ImportResult, error) {
	result := &engine.ImportResult{}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item engine.ImportItem
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("decode import response line: %w", err)
		}
		if item.Success {
			result.Success++
		} else {
			result.Failed++
		}
		result.Items = append(result.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read import response: %w", err)
	}
	return result, nil
}

// RetrieveDocument fetches one document.
func (c *Client) RetrieveDocument(ctx context.Context, collection, id string) (domain.Document, error) {
	var doc domain.Document
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "collections", collection, "documents", id), nil, &doc); err != nil {
		return nil, fmt.Errorf("typesense retrieve document %s: %w", id, err)
	}
	return doc, nil
}

// DeleteDocument removes one document.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, c.endpoint(nil, "collections", collection, "documents", id), nil, nil); err != nil {
		return fmt.Errorf("typesense delete document %s: %w", id, err)
	}
	return nil
}

// DeleteByQuery removes the documents matching filterBy.
func (c *Client) DeleteByQuery(ctx context.Context, collection, filterBy string) (int, error) {
	var resp struct {
		NumDeleted int `json:"num_deleted"`
	}
	q := url.Values{"filter_by": {filterBy}}
	if err := c.doJSON(ctx, http.MethodDelete, c.endpoint(q, "collections", collection, "documents"), nil, &resp); err != nil {
		return 0, fmt.Errorf("typesense delete by query in %s: %w", collection, err)
	}
	return resp.NumDeleted, nil
}

type searchResponse struct {
	Found         int          `json:"found"`
	Page          int          `json:"page"`
	SearchTimeMs  int64        `json:"search_time_ms"`
	Hits          []engine.Hit `json:"hits"`
	RequestParams struct {
		PerPage int `json:"per_page"`
	} `json:"request_params"`
}

// Search queries a collection or alias.
func (c *Client) Search(ctx context.Context, collection string, params engine.SearchParams) (*engine.SearchResult, error) {
	q := url.Values{}
	for k, v := range params.Extra {
		q.Set(k, v)
	}
	q.Set("q", params.Q)
	q.Set("query_by", params.QueryBy)
	if params.FilterBy != "" {
		q.Set("filter_by", params.FilterBy)
	}
	if params.SortBy != "" {
		q.Set("sort_by", params.SortBy)
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}

	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(q, "collections", collection, "documents", "search"), nil, &resp); err != nil {
		return nil, fmt.Errorf("typesense search %s: %w", collection, err)
	}
	if resp.Hits == nil {
		resp.Hits = []engine.Hit{}
	}
	return &engine.SearchResult{
		Found:        resp.Found,
		Page:         resp.Page,
		PerPage:      resp.RequestParams.PerPage,
		SearchTimeMs: resp.SearchTimeMs,
		Hits:         resp.Hits,
	}, nil
}

// UpsertSynonym creates or replaces a synonym set.
func (c *Client) UpsertSynonym(ctx context.Context, collection string, synonym domain.Synonym) error {
	target := c.endpoint(nil, "collections", collection, "synonyms", synonym.Name)
	if err := c.doJSON(ctx, http.MethodPut, target, synonym, nil); err != nil {
		return fmt.Errorf("typesense upsert synonym %s: %w", synonym.Name, err)
	}
	return nil
}

// Health calls the cluster health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "health"), nil, &resp); err != nil {
		return fmt.Errorf("typesense health: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("typesense health: cluster reports not ok")
	}
	return nil
}
