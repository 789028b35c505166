package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithoutAutoIndex_KeyedByModel(t *testing.T) {
	ctx := WithoutAutoIndex(context.Background(), "Product")

	assert.True(t, Suppressed(ctx, "Product"))
	assert.False(t, Suppressed(ctx, "Order"))
	assert.False(t, Suppressed(context.Background(), "Product"))
}

func TestWithoutAutoIndex_NestedScopesRestoreOuter(t *testing.T) {
	outer := WithoutAutoIndex(context.Background(), "Product")

	err := Run(outer, "Product", func(inner context.Context) error {
		assert.True(t, Suppressed(inner, "Product"))
		return Run(inner, "Order", func(ctx context.Context) error {
			assert.True(t, Suppressed(ctx, "Product"))
			assert.True(t, Suppressed(ctx, "Order"))
			return nil
		})
	})
	assert.NoError(t, err)

	assert.True(t, Suppressed(outer, "Product"), "leaving the inner scope keeps the outer one")
	assert.False(t, Suppressed(outer, "Order"))
}

func TestRun_PropagatesErrorAndPanics(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), "Product", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx := context.Background()
	assert.Panics(t, func() {
		_ = Run(ctx, "Product", func(context.Context) error { panic("x") })
	})
	assert.False(t, Suppressed(ctx, "Product"))
}
