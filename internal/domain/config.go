package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/validator"
)

// DefaultBatchSize is the page size used by full reindexes when none is given.
const DefaultBatchSize = 500

// Condition is one `if` or `unless` predicate. Attribute-backed conditions
// read a record field and can be change-tracked; Func conditions are opaque.
type Condition struct {
	Attribute string
	Func      func(Record) bool
}

// OnAttribute returns a condition that passes when the named attribute is truthy.
func OnAttribute(name string) Condition {
	return Condition{Attribute: name}
}

// When returns an opaque condition.
func When(fn func(Record) bool) Condition {
	return Condition{Func: fn}
}

// Opaque reports whether the condition's inputs cannot be change-tracked.
func (c Condition) Opaque() bool {
	return c.Func != nil
}

func (c Condition) passes(rec Record) bool {
	if c.Func != nil {
		return c.Func(rec)
	}
	v, _ := rec.Attribute(c.Attribute)
	return Truthy(v)
}

func allPass(conds []Condition, rec Record) bool {
	for _, c := range conds {
		if !c.passes(rec) {
			return false
		}
	}
	return true
}

// AttributeSpec declares indexed attributes. Several names read fields
// directly; a single name with Compute evaluates the function instead.
type AttributeSpec struct {
	Names   []string
	Compute func(Record) any
}

// Attributes declares direct field reads.
func Attributes(names ...string) AttributeSpec {
	return AttributeSpec{Names: names}
}

// Computed declares one attribute produced by fn.
func Computed(name string, fn func(Record) any) AttributeSpec {
	return AttributeSpec{Names: []string{name}, Compute: fn}
}

// Serializer produces the complete attribute map for a record. When set it
// replaces every other attribute source.
type Serializer func(Record) map[string]any

// EnqueueFunc defers an index (remove=false) or removal (remove=true) to an
// asynchronous mechanism.
type EnqueueFunc func(ctx context.Context, rec Record, remove bool) error

// IndexConfiguration is the per-model indexing declaration. It must not be
// modified after it has been declared.
type IndexConfiguration struct {
	IndexName      string `validate:"omitempty,identifier"`
	PerEnvironment bool
	IDAttribute    string `validate:"omitempty,identifier"`

	If              []Condition
	Unless          []Condition
	DisableIndexing func() bool

	Enqueue     EnqueueFunc
	AutoIndex   bool
	AutoRemove  bool
	DirtyValues string `validate:"omitempty,oneof=coerce_or_reject coerce_or_drop drop reject"`
	BatchSize   int    `validate:"gte=0"`

	Sanitize          bool
	ForceUTF8Encoding bool

	Attributes           []AttributeSpec
	AdditionalAttributes []AttributeSpec
	Serializer           Serializer

	PredefinedFields    []Field `validate:"dive"`
	DefaultSortingField string
	TokenSeparators     []string
	SymbolsToIndex      []string
	EnableNestedFields  bool
	Metadata            map[string]string
	MultiWaySynonyms    []Synonym `validate:"dive"`
	OneWaySynonyms      []Synonym `validate:"dive"`
}

// DefaultIndexConfiguration returns a configuration with auto indexing and
// auto removal enabled and the default batch size.
func DefaultIndexConfiguration() IndexConfiguration {
	return IndexConfiguration{
		IDAttribute: IDField,
		AutoIndex:   true,
		AutoRemove:  true,
		BatchSize:   DefaultBatchSize,
	}
}

// Validate checks the declaration and returns a BAD_CONFIGURATION error
// describing the first problem found.
func (c IndexConfiguration) Validate() error {
	if err := validator.Validate(c); err != nil {
		return apperrors.BadConfiguration(err.Error())
	}
	for _, specs := range [][]AttributeSpec{c.Attributes, c.AdditionalAttributes} {
		for _, spec := range specs {
			if spec.Compute != nil && len(spec.Names) > 1 {
				return apperrors.BadConfiguration(fmt.Sprintf(
					"cannot pass multiple attribute names (%s) with a computed value", strings.Join(spec.Names, ", ")))
			}
			for _, name := range spec.Names {
				if name == "" {
					return apperrors.BadConfiguration("attribute name must not be empty")
				}
			}
		}
	}
	for _, cond := range append(append([]Condition{}, c.If...), c.Unless...) {
		if cond.Func == nil && cond.Attribute == "" {
			return apperrors.BadConfiguration("condition needs an attribute or a function")
		}
	}
	for _, syn := range c.OneWaySynonyms {
		if !syn.IsOneWay() {
			return apperrors.BadConfiguration(fmt.Sprintf("one-way synonym %q has no root", syn.Name))
		}
	}
	for _, syn := range append(append([]Synonym{}, c.MultiWaySynonyms...), c.OneWaySynonyms...) {
		if syn.Name == "" {
			return apperrors.BadConfiguration("synonym name must not be empty")
		}
	}
	return nil
}

// ResolveIndexName returns the alias name for model. Without an explicit
// IndexName the model name is used with "::" replaced by "_"; PerEnvironment
// appends the environment.
func (c IndexConfiguration) ResolveIndexName(model, environment string) string {
	name := c.IndexName
	if name == "" {
		name = strings.ReplaceAll(model, "::", "_")
	}
	if c.PerEnvironment && environment != "" {
		name = name + "_" + environment
	}
	return name
}

// IDAttributeName returns the attribute holding the document id.
func (c IndexConfiguration) IDAttributeName() string {
	if c.IDAttribute == "" {
		return IDField
	}
	return c.IDAttribute
}

// ObjectID returns the record's document id, or "" when it has none.
func (c IndexConfiguration) ObjectID(rec Record) string {
	v, _ := rec.Attribute(c.IDAttributeName())
	return Stringify(v)
}

// Conditional reports whether any if/unless predicate is configured.
func (c IndexConfiguration) Conditional() bool {
	return len(c.If) > 0 || len(c.Unless) > 0
}

// Indexable reports whether rec belongs in the index: every If condition
// passes and the Unless conditions do not all pass.
func (c IndexConfiguration) Indexable(rec Record) bool {
	ifPasses := len(c.If) == 0 || allPass(c.If, rec)
	unlessPasses := len(c.Unless) == 0 || !allPass(c.Unless, rec)
	return ifPasses && unlessPasses
}

// IndexingDisabled evaluates the DisableIndexing predicate.
func (c IndexConfiguration) IndexingDisabled() bool {
	return c.DisableIndexing != nil && c.DisableIndexing()
}

// EffectiveBatchSize picks n, then the configured batch size, then the default.
func (c IndexConfiguration) EffectiveBatchSize(n int) int {
	switch {
	case n > 0:
		return n
	case c.BatchSize > 0:
		return c.BatchSize
	default:
		return DefaultBatchSize
	}
}

// Conditions returns the if and unless conditions together.
func (c IndexConfiguration) Conditions() []Condition {
	out := make([]Condition, 0, len(c.If)+len(c.Unless))
	out = append(out, c.If...)
	return append(out, c.Unless...)
}

// AttributeNames lists the attribute names an extraction of rec would
// produce, sorted.
func (c IndexConfiguration) AttributeNames(rec Record) []string {
	seen := make(map[string]struct{})
	switch {
	case c.Serializer != nil:
		for k := range c.Serializer(rec) {
			seen[k] = struct{}{}
		}
	case len(c.Attributes) == 0:
		for k := range rec.Attributes() {
			seen[k] = struct{}{}
		}
	default:
		for _, spec := range c.Attributes {
			for _, n := range spec.Names {
				seen[n] = struct{}{}
			}
		}
	}
	for _, spec := range c.AdditionalAttributes {
		for _, n := range spec.Names {
			seen[n] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Schema builds the creation payload for a physical collection.
func (c IndexConfiguration) Schema(collection string) CollectionSchema {
	fields := c.PredefinedFields
	if len(fields) == 0 {
		fields = []Field{AutoField}
	}
	synonyms := make([]Synonym, 0, len(c.MultiWaySynonyms)+len(c.OneWaySynonyms))
	synonyms = append(synonyms, c.MultiWaySynonyms...)
	synonyms = append(synonyms, c.OneWaySynonyms...)

	return CollectionSchema{
		Name:                collection,
		Fields:              fields,
		DefaultSortingField: c.DefaultSortingField,
		TokenSeparators:     c.TokenSeparators,
		SymbolsToIndex:      c.SymbolsToIndex,
		EnableNestedFields:  c.EnableNestedFields,
		Metadata:            c.Metadata,
		Synonyms:            synonyms,
	}
}
