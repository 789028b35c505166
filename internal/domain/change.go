package domain

import "reflect"

// ChangeSignal is a tri-state answer to "did this attribute change".
type ChangeSignal int

const (
	// ChangeUnknown means the record cannot tell, e.g. a computed attribute.
	ChangeUnknown ChangeSignal = iota
	ChangeNone
	ChangeDetected
)

func (s ChangeSignal) String() string {
	switch s {
	case ChangeNone:
		return "none"
	case ChangeDetected:
		return "detected"
	default:
		return "unknown"
	}
}

// MapRecord is a Record backed by a field map. Sources that load rows
// generically return it, and hosts without their own model type can use it
// directly. It tracks changes made through Set since the last MarkPersisted.
type MapRecord struct {
	Fields  map[string]any
	New     bool
	changes map[string]struct{}
}

// NewMapRecord returns a persisted record with no pending changes.
func NewMapRecord(fields map[string]any) *MapRecord {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &MapRecord{Fields: fields, changes: make(map[string]struct{})}
}

// Attribute implements Record.
func (r *MapRecord) Attribute(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Attributes implements Record. The returned map is a copy.
func (r *MapRecord) Attributes() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}

// IsNewRecord implements Record.
func (r *MapRecord) IsNewRecord() bool {
	return r.New
}

// Set assigns a field and records the change when the value differs.
func (r *MapRecord) Set(name string, v any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	if r.changes == nil {
		r.changes = make(map[string]struct{})
	}
	if old, ok := r.Fields[name]; ok && reflect.DeepEqual(old, v) {
		return
	}
	r.Fields[name] = v
	r.changes[name] = struct{}{}
}

// MarkPersisted clears pending changes and the new-record flag.
func (r *MapRecord) MarkPersisted() {
	r.New = false
	r.changes = make(map[string]struct{})
}

// WillSaveChangeToAttribute reports whether name changed since the last
// MarkPersisted. Fields the record has never seen are unknown.
func (r *MapRecord) WillSaveChangeToAttribute(name string) ChangeSignal {
	if _, ok := r.changes[name]; ok {
		return ChangeDetected
	}
	if _, ok := r.Fields[name]; !ok {
		return ChangeUnknown
	}
	return ChangeNone
}
