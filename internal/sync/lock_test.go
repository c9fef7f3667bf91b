package sync

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/pkg/errors"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "sis_sync_lock:", time.Hour), mr
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	release, err := l.Acquire(ctx, "grades", false)
	require.NoError(t, err)
	assert.True(t, mr.Exists("sis_sync_lock:grades"))

	_, err = l.Acquire(ctx, "grades", false)
	assert.True(t, errors.Is(err, errors.ErrSyncInProgress))

	other, err := l.Acquire(ctx, "users", false)
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("sis_sync_lock:grades"))

	again, err := l.Acquire(ctx, "grades", false)
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ForceTakesOver(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	stale, err := l.Acquire(ctx, "grades", false)
	require.NoError(t, err)

	forced, err := l.Acquire(ctx, "grades", true)
	require.NoError(t, err)

	// the stale holder must not drop the new owner's lock
	stale()
	assert.True(t, mr.Exists("sis_sync_lock:grades"))

	forced()
	assert.False(t, mr.Exists("sis_sync_lock:grades"))
}

func TestRedisLocker_Expires(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	_, err := l.Acquire(ctx, "enrollments", false)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	release, err := l.Acquire(ctx, "enrollments", false)
	require.NoError(t, err)
	release()
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Acquire(ctx, "users", false)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "users", false)
	assert.True(t, errors.Is(err, errors.ErrSyncInProgress))

	forced, err := l.Acquire(ctx, "users", true)
	require.NoError(t, err)
	release()
	_, err = l.Acquire(ctx, "users", false)
	assert.True(t, errors.Is(err, errors.ErrSyncInProgress))
	forced()

	_, err = l.Acquire(ctx, "users", false)
	assert.NoError(t, err)
}
