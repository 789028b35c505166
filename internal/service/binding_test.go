package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	"github.com/utafrali/searchsync/internal/lock"
)

// busyLocker reports the lock as held and lets another "process" create
// the index in the meantime.
type busyLocker struct {
	onAcquire func()
}

func (b busyLocker) Acquire(context.Context, string, time.Duration) (lock.Release, error) {
	if b.onAcquire != nil {
		go b.onAcquire()
	}
	return nil, lock.ErrNotAcquired
}

func TestEnsureBinding_LoserAdoptsWinnersCollection(t *testing.T) {
	ctx := context.Background()
	var gw engine.Gateway
	env := newTestEnv(t, WithLocker(busyLocker{onAcquire: func() {
		time.Sleep(20 * time.Millisecond)
		_ = gw.CreateCollection(context.Background(), domain.CollectionSchema{Name: "Book_1699999999", Fields: []domain.Field{domain.AutoField}})
		_ = gw.UpsertAlias(context.Background(), "Book", "Book_1699999999")
	}}, time.Second))
	gw = env.mem
	env.syncer.pollInterval = 5 * time.Millisecond
	m, _ := env.declare(t, "Book", domain.DefaultIndexConfiguration())

	b, err := m.EnsureBinding(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Book_1699999999", b.CollectionName)
	assert.Zero(t, env.spy.creates)
}

func TestEnsureBinding_LoserGivesUpAfterTTL(t *testing.T) {
	env := newTestEnv(t, WithLocker(busyLocker{}, 30*time.Millisecond))
	env.syncer.pollInterval = 5 * time.Millisecond
	m, _ := env.declare(t, "Book", domain.DefaultIndexConfiguration())

	_, err := m.EnsureBinding(context.Background(), true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, env.mem.CollectionNames())
}
