package domain

import (
	"fmt"
	"reflect"
	"strings"
)

// Record is the capability a host model exposes to the sync engine. The
// engine never depends on a concrete ORM type.
type Record interface {
	// Attribute reads a single named field or method value.
	Attribute(name string) (any, bool)
	// Attributes returns the record's default persisted fields.
	Attributes() map[string]any
	// IsNewRecord reports whether the record has never been persisted.
	IsNewRecord() bool
}

// Stringify renders an identifier value the way it is stored in the index.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// IsBlank reports whether an identifier is empty or whitespace only.
func IsBlank(id string) bool {
	return strings.TrimSpace(id) == ""
}

// Truthy reports whether an attribute value counts as true in a condition.
// nil, false, empty strings, "false", "0" and numeric zero of any width are
// false. Pointers are judged by what they point at.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	case reflect.Pointer:
		if rv.IsNil() {
			return false
		}
		return Truthy(rv.Elem().Interface())
	default:
		return true
	}
}
