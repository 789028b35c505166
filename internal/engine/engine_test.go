package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFilter_RoundTrip(t *testing.T) {
	ids := []string{"1", "a, b", "sku 9"}
	filter := IDFilter(ids)
	assert.Equal(t, "id: [`1`, `a, b`, `sku 9`]", filter)

	parsed, err := ParseIDFilter(filter)
	require.NoError(t, err)
	assert.Equal(t, ids, parsed)
}

func TestParseIDFilter(t *testing.T) {
	tests := []struct {
		filter  string
		want    []string
		wantErr bool
	}{
		{"id: [1, 2,3]", []string{"1", "2", "3"}, false},
		{"id:[]", []string{}, false},
		{"id: 42", []string{"42"}, false},
		{"id: [`x`]", []string{"x"}, false},
		{"name: [a]", nil, true},
		{"id: [`open]", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			got, err := ParseIDFilter(tt.filter)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportResult_Add(t *testing.T) {
	total := &ImportResult{}
	total.Add(&ImportResult{Success: 2, Items: []ImportItem{{Success: true}, {Success: true}}})
	total.Add(&ImportResult{Success: 1, Failed: 1})
	total.Add(nil)

	assert.Equal(t, 3, total.Success)
	assert.Equal(t, 1, total.Failed)
	assert.Len(t, total.Items, 2)
}
