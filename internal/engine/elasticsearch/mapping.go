package elasticsearch

import (
	"strings"

	"github.com/utafrali/searchsync/internal/domain"
)

const (
	textAnalyzer   = "searchsync_text"
	searchAnalyzer = "searchsync_search"
	synonymFilter  = "searchsync_synonyms"
	separatorChars = "searchsync_separators"
)

// synonymSetID names the synonyms set backing a collection's search analyzer.
func synonymSetID(collection string) string {
	return collection + "_synonyms"
}

// synonymRule renders a synonym in Solr format: "a, b, c" for multi-way sets
// and "root => root, a, b" for one-way sets.
func synonymRule(s domain.Synonym) string {
	if s.IsOneWay() {
		return s.Root + " => " + strings.Join(append([]string{s.Root}, s.Synonyms...), ", ")
	}
	return strings.Join(s.Synonyms, ", ")
}

// buildIndexBody translates a collection schema into index settings and
// mappings. Declared fields become explicit properties; the wildcard field
// turns on dynamic mapping with a template that routes strings through the
// text analyzers.
func buildIndexBody(schema domain.CollectionSchema) map[string]any {
	charFilters := []string{}
	analysis := map[string]any{}
	if len(schema.TokenSeparators) > 0 {
		mappings := make([]string, 0, len(schema.TokenSeparators))
		for _, sep := range schema.TokenSeparators {
			mappings = append(mappings, sep+" => \\u0020")
		}
		analysis["char_filter"] = map[string]any{
			separatorChars: map[string]any{"type": "mapping", "mappings": mappings},
		}
		charFilters = append(charFilters, separatorChars)
	}

	searchFilters := []string{"lowercase"}
	if len(schema.Synonyms) > 0 {
		analysis["filter"] = map[string]any{
			synonymFilter: map[string]any{
				"type":         "synonym_graph",
				"synonyms_set": synonymSetID(schema.Name),
				"updateable":   true,
			},
		}
		searchFilters = append(searchFilters, synonymFilter)
	}

	analysis["analyzer"] = map[string]any{
		textAnalyzer: map[string]any{
			"type":        "custom",
			"tokenizer":   "standard",
			"char_filter": charFilters,
			"filter":      []string{"lowercase"},
		},
		searchAnalyzer: map[string]any{
			"type":        "custom",
			"tokenizer":   "standard",
			"char_filter": charFilters,
			"filter":      searchFilters,
		},
	}

	properties := map[string]any{
		domain.IDField: map[string]any{"type": "keyword"},
	}
	dynamic := false
	for _, f := range schema.Fields {
		if f.Type == "auto" || strings.ContainsAny(f.Name, "*") {
			dynamic = true
			continue
		}
		properties[f.Name] = fieldMapping(f)
	}

	mappings := map[string]any{
		"dynamic":    dynamic,
		"properties": properties,
		"_meta":      meta(schema),
	}
	if dynamic {
		mappings["dynamic_templates"] = []any{
			map[string]any{
				"strings": map[string]any{
					"match_mapping_type": "string",
					"mapping":            textMapping(),
				},
			},
		}
	}

	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis":           analysis,
		},
		"mappings": mappings,
	}
}

func textMapping() map[string]any {
	return map[string]any{
		"type":            "text",
		"analyzer":        textAnalyzer,
		"search_analyzer": searchAnalyzer,
		"fields": map[string]any{
			"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
		},
	}
}

func fieldMapping(f domain.Field) map[string]any {
	switch strings.TrimSuffix(f.Type, "[]") {
	case "string", "string*":
		return textMapping()
	case "int32", "int64":
		return map[string]any{"type": "long"}
	case "float":
		return map[string]any{"type": "double"}
	case "bool":
		return map[string]any{"type": "boolean"}
	case "geopoint":
		return map[string]any{"type": "geo_point"}
	case "object":
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "keyword"}
	}
}

func meta(schema domain.CollectionSchema) map[string]any {
	m := map[string]any{}
	if schema.DefaultSortingField != "" {
		m["default_sorting_field"] = schema.DefaultSortingField
	}
	if len(schema.SymbolsToIndex) > 0 {
		m["symbols_to_index"] = schema.SymbolsToIndex
	}
	if schema.EnableNestedFields {
		m["enable_nested_fields"] = true
	}
	for k, v := range schema.Metadata {
		m[k] = v
	}
	return m
}
