package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/utafrali/searchsync/internal/domain"
)

// ActionUpsert is the only import action the sync engine issues.
const ActionUpsert = "upsert"

// Gateway is the contract over a remote search engine. Missing collections,
// aliases and documents are reported as errors matching
// apperrors.ErrObjectNotFound, never as empty successes.
type Gateway interface {
	// CreateCollection creates a physical collection and upserts the
	// schema's synonyms into it.
	CreateCollection(ctx context.Context, schema domain.CollectionSchema) error

	// GetCollection retrieves a collection by physical name or alias.
	GetCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// DeleteCollection deletes a collection by physical name or alias.
	DeleteCollection(ctx context.Context, name string) error

	// UpsertAlias points alias at collection, creating it if needed.
	UpsertAlias(ctx context.Context, alias, collection string) error

	// GetAlias retrieves an alias.
	GetAlias(ctx context.Context, alias string) (*Alias, error)

	// UpsertDocument creates or replaces one document.
	UpsertDocument(ctx context.Context, collection string, doc domain.Document, dirtyValues string) error

	// ImportDocuments imports a newline-delimited JSON batch. Per-document
	// failures are reported in the result, not as an error.
	ImportDocuments(ctx context.Context, collection string, jsonl []byte, opts ImportOptions) (*ImportResult, error)

	// RetrieveDocument fetches one document by id.
	RetrieveDocument(ctx context.Context, collection, id string) (domain.Document, error)

	// DeleteDocument removes one document by id.
	DeleteDocument(ctx context.Context, collection, id string) error

	// DeleteByQuery removes every document matching filterBy and returns
	// how many were deleted.
	DeleteByQuery(ctx context.Context, collection, filterBy string) (int, error)

	// Search runs a query against a collection or alias.
	Search(ctx context.Context, collection string, params SearchParams) (*SearchResult, error)

	// UpsertSynonym creates or replaces a synonym set.
	UpsertSynonym(ctx context.Context, collection string, synonym domain.Synonym) error
}

// CollectionInfo describes a physical collection.
type CollectionInfo struct {
	Name         string         `json:"name"`
	NumDocuments int64          `json:"num_documents"`
	CreatedAt    int64          `json:"created_at,omitempty"`
	Fields       []domain.Field `json:"fields,omitempty"`
}

// Alias maps a stable name to a physical collection.
type Alias struct {
	Name           string `json:"name"`
	CollectionName string `json:"collection_name"`
}

// ImportOptions controls a batch import.
type ImportOptions struct {
	Action string
	// BatchSize is a hint for how many documents the engine processes at once.
	BatchSize int
}

// ImportResult summarizes a batch import.
type ImportResult struct {
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Items   []ImportItem `json:"items,omitempty"`
}

// ImportItem is the outcome of one line of an import.
type ImportItem struct {
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty"`
	Error    string `json:"error,omitempty"`
	Document string `json:"document,omitempty"`
}

// Add folds another result into r.
func (r *ImportResult) Add(other *ImportResult) {
	if other == nil {
		return
	}
	r.Success += other.Success
	r.Failed += other.Failed
	r.Items = append(r.Items, other.Items...)
}

// SearchParams are the common search parameters; Extra carries
// engine-specific ones verbatim.
type SearchParams struct {
	Q        string            `json:"q"`
	QueryBy  string            `json:"query_by"`
	FilterBy string            `json:"filter_by,omitempty"`
	SortBy   string            `json:"sort_by,omitempty"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
	Extra    map[string]string `json:"-"`
}

// SearchResult is one page of hits.
type SearchResult struct {
	Found        int   `json:"found"`
	Page         int   `json:"page"`
	PerPage      int   `json:"per_page"`
	SearchTimeMs int64 `json:"search_time_ms"`
	Hits         []Hit `json:"hits"`
}

// Hit is one matching document.
type Hit struct {
	Document   domain.Document `json:"document"`
	Highlights []Highlight     `json:"highlights,omitempty"`
	TextMatch  int64           `json:"text_match,omitempty"`
}

// Highlight is a snippet of a matching field.
type Highlight struct {
	Field         string   `json:"field"`
	Snippet       string   `json:"snippet"`
	MatchedTokens []string `json:"matched_tokens,omitempty"`
}

// IDFilter builds the filter expression selecting documents by id. Values
// are backtick-quoted so ids containing commas or spaces stay intact.
func IDFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "`" + id + "`"
	}
	return domain.IDField + ": [" + strings.Join(quoted, ", ") + "]"
}

// ParseIDFilter is the inverse of IDFilter. It also accepts unquoted values.
func ParseIDFilter(filter string) ([]string, error) {
	field, list, ok := strings.Cut(filter, ":")
	if !ok || strings.TrimSpace(field) != domain.IDField {
		return nil, fmt.Errorf("unsupported filter %q: only id filters are supported", filter)
	}
	list = strings.TrimSpace(list)
	if !strings.HasPrefix(list, "[") || !strings.HasSuffix(list, "]") {
		return []string{strings.Trim(list, "`")}, nil
	}
	list = strings.TrimSpace(list[1 : len(list)-1])
	if list == "" {
		return []string{}, nil
	}

	var ids []string
	for len(list) > 0 {
		var id string
		if list[0] == '`' {
			end := strings.IndexByte(list[1:], '`')
			if end < 0 {
				return nil, fmt.Errorf("unterminated value in filter %q", filter)
			}
			id = list[1 : end+1]
			list = list[end+2:]
		} else {
			id, list, _ = strings.Cut(list, ",")
			id = strings.TrimSpace(id)
		}
		ids = append(ids, id)
		list = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(list), ","))
	}
	return ids, nil
}
