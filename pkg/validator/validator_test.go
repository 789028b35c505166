package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type declaration struct {
	Table     string `validate:"required,identifier"`
	BatchSize int    `validate:"gte=1,lte=10000"`
	Backend   string `validate:"oneof=typesense elasticsearch memory"`
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(declaration{Table: "books", BatchSize: 500, Backend: "memory"}))
}

func TestValidate_Failures(t *testing.T) {
	err := Validate(declaration{Table: "books; DROP TABLE x", BatchSize: 0, Backend: "solr"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields["Table"], "letters, digits and underscores")
	assert.Equal(t, "must be greater than or equal to 1", fields["BatchSize"])
	assert.Equal(t, "must be one of: typesense elasticsearch memory", fields["Backend"])
	assert.Contains(t, err.Error(), "declaration.Table")
}

func TestValidate_Required(t *testing.T) {
	err := Validate(declaration{BatchSize: 1, Backend: "memory"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["Table"])
}

func TestIsIdentifier(t *testing.T) {
	for _, ok := range []string{"books", "Admin_Book", "_private", "t1"} {
		assert.True(t, IsIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1books", "books-2", "a.b", `"x"`, "a b"} {
		assert.False(t, IsIdentifier(bad), bad)
	}
}
