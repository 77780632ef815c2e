package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerExcludesConcurrentHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := NewLocker(rdb)
	ctx := context.Background()

	ran := false
	err := locker.WithLock(ctx, "lock:test", time.Minute, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, "lock:test", time.Minute, func(context.Context) error {
			t.Fatal("inner lock must not be obtained")
			return nil
		})
		require.ErrorIs(t, inner, ErrLockHeld)
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	// released after the first holder returns
	require.NoError(t, locker.WithLock(ctx, "lock:test", time.Minute, func(context.Context) error { return nil }))
}
