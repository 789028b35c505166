package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/lock"
)

func setupLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLocker_FirstCreatorWins(t *testing.T) {
	l, _ := setupLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "books", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "books", time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	_, err = l.Acquire(ctx, "authors", time.Minute)
	assert.NoError(t, err, "keys are independent")

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "books", time.Minute)
	assert.NoError(t, err)
}

func TestLocker_ExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	l, mr := setupLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "books", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = l.Acquire(ctx, "books", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists(keyPrefix+"books"), "new holder keeps the lock")
}

func TestLocker_RedisDown(t *testing.T) {
	l, mr := setupLocker(t)
	mr.Close()

	_, err := l.Acquire(context.Background(), "books", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, lock.ErrNotAcquired)
}

func TestNoop(t *testing.T) {
	release, err := lock.Noop{}.Acquire(context.Background(), "books", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
}
