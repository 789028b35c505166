// Package attributes turns records into flat search documents.
package attributes

import (
	"fmt"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/unicode"

	"github.com/utafrali/searchsync/internal/domain"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

// Extractor builds documents from records according to an IndexConfiguration.
// It is safe for concurrent use.
type Extractor struct {
	policy *bluemonday.Policy
}

// NewExtractor creates an Extractor that strips all HTML when sanitizing.
func NewExtractor() *Extractor {
	return &Extractor{policy: bluemonday.StrictPolicy()}
}

// Extract returns the document for rec without the id field. The record and
// any maps it returns are never modified.
func (e *Extractor) Extract(rec domain.Record, cfg domain.IndexConfiguration) (domain.Document, error) {
	var doc domain.Document

	switch {
	case cfg.Serializer != nil:
		doc = copyMap(cfg.Serializer(rec))
	case len(cfg.Attributes) == 0:
		doc = copyMap(rec.Attributes())
	default:
		doc = make(domain.Document)
		if err := evaluate(doc, rec, cfg.Attributes); err != nil {
			return nil, err
		}
	}

	if err := evaluate(doc, rec, cfg.AdditionalAttributes); err != nil {
		return nil, err
	}

	if cfg.Sanitize {
		for k, v := range doc {
			doc[k] = e.transform(v, e.sanitize)
		}
	}
	if cfg.ForceUTF8Encoding {
		for k, v := range doc {
			doc[k] = e.transform(v, forceUTF8)
		}
	}
	return doc, nil
}

func evaluate(doc domain.Document, rec domain.Record, specs []domain.AttributeSpec) error {
	for _, spec := range specs {
		if spec.Compute != nil {
			if len(spec.Names) != 1 {
				return apperrors.BadConfiguration("a computed attribute needs exactly one name")
			}
			doc[spec.Names[0]] = spec.Compute(rec)
			continue
		}
		for _, name := range spec.Names {
			v, ok := rec.Attribute(name)
			if !ok {
				return apperrors.BadConfiguration(fmt.Sprintf("record has no attribute %q", name))
			}
			doc[name] = v
		}
	}
	return nil
}

func copyMap(m map[string]any) domain.Document {
	doc := make(domain.Document, len(m))
	for k, v := range m {
		doc[k] = v
	}
	return doc
}

// transform applies fn to every string leaf, recursing through maps and
// slices. Containers are rebuilt rather than modified in place.
func (e *Extractor) transform(v any, fn func(string) string) any {
	switch t := v.(type) {
	case string:
		return fn(t)
	case []byte:
		return fn(string(t))
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = fn(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = e.transform(x, fn)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = e.transform(x, fn)
		}
		return out
	case domain.Document:
		out := make(domain.Document, len(t))
		for k, x := range t {
			out[k] = e.transform(x, fn)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = fn(s)
		}
		return out
	default:
		return v
	}
}

func (e *Extractor) sanitize(s string) string {
	return html.UnescapeString(e.policy.Sanitize(s))
}

// forceUTF8 reinterprets s as UTF-8, replacing invalid sequences with U+FFFD.
func forceUTF8(s string) string {
	out, err := unicode.UTF8.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}
