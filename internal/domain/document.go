package domain

import (
	"encoding/json"
	"fmt"
)

// IDField is the document field every indexed record carries.
const IDField = "id"

// Document is the flat field map submitted to and retrieved from a search engine.
type Document map[string]any

// ID returns the document's id field as a string.
func (d Document) ID() string {
	return Stringify(d[IDField])
}

// WithID returns a copy of d with the id field set.
func (d Document) WithID(id string) Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[IDField] = id
	return out
}

// Binding resolves a configuration to its physical collection and the alias
// readers address.
type Binding struct {
	CollectionName string `json:"collection_name"`
	AliasName      string `json:"alias_name"`
}

// Field declares one schema field.
type Field struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Facet    bool   `json:"facet,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Sort     bool   `json:"sort,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// AutoField is the wildcard schema used when no fields are declared.
var AutoField = Field{Name: ".*", Type: "auto"}

// Synonym is a multi-way synonym set, or a one-way set when Root is non-empty.
type Synonym struct {
	Name     string   `json:"-"`
	Root     string   `json:"root,omitempty"`
	Synonyms []string `json:"synonyms" validate:"min=1"`
}

// IsOneWay reports whether the synonym maps a root term onto its synonyms.
func (s Synonym) IsOneWay() bool {
	return s.Root != ""
}

// CollectionSchema is the payload used to create a physical collection.
type CollectionSchema struct {
	Name                string            `json:"name"`
	Fields              []Field           `json:"fields"`
	DefaultSortingField string            `json:"default_sorting_field,omitempty"`
	TokenSeparators     []string          `json:"token_separators,omitempty"`
	SymbolsToIndex      []string          `json:"symbols_to_index,omitempty"`
	EnableNestedFields  bool              `json:"enable_nested_fields,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`

	// Synonyms are upserted right after the collection is created.
	Synonyms []Synonym `json:"-"`
}

// EncodeJSONL encodes documents as newline-delimited JSON, one per line.
func EncodeJSONL(docs []Document) ([]byte, error) {
	var buf []byte
	for i, doc := range docs {
		line, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document %s: %w", doc.ID(), err)
		}
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, line...)
	}
	return buf, nil
}
