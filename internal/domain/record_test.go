package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	yes, no := true, false
	var nilBool *bool

	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"false", false},
		{"0", false},
		{"yes", true},
		{int(0), false},
		{int8(0), false},
		{int16(0), false},
		{int32(0), false},
		{int64(0), false},
		{uint(0), false},
		{uint8(0), false},
		{uint16(0), false},
		{uint32(0), false},
		{uint64(0), false},
		{float32(0), false},
		{float64(0), false},
		{int(1), true},
		{int8(-1), true},
		{int16(1), true},
		{int32(1), true},
		{int64(1), true},
		{uint(1), true},
		{uint8(1), true},
		{uint16(1), true},
		{uint32(1), true},
		{uint64(1), true},
		{float32(0.5), true},
		{float64(0.5), true},
		{&yes, true},
		{&no, false},
		{nilBool, false},
		{[]string{}, true},
		{map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T(%v)", tt.value, tt.value), func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.value))
		})
	}
}

func TestIndexable_SmallintFlag(t *testing.T) {
	cfg := DefaultIndexConfiguration()
	cfg.If = []Condition{OnAttribute("published")}

	assert.False(t, cfg.Indexable(NewMapRecord(map[string]any{"id": 1, "published": int16(0)})))
	assert.True(t, cfg.Indexable(NewMapRecord(map[string]any{"id": 2, "published": int16(1)})))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "abc", Stringify("abc"))
	assert.Equal(t, "abc", Stringify([]byte("abc")))
	assert.Equal(t, "42", Stringify(int16(42)))
}
