package lock_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sdeal/internal/lock"
)

func newLocker(t *testing.T, maxWait time.Duration) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, Prefix: "sdeal:lock:", RetryBackoff: 5 * time.Millisecond, MaxWait: maxWait}, mr
}

func TestWithLockWaitsForHolder(t *testing.T) {
	locker, mr := newLocker(t, time.Second)
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "quote-email:SD-7K2M9QXA", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "sdeal:lock:quote-email:SD-7K2M9QXA", held.Key())

	released := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = held.Release(ctx)
		close(released)
	}()

	ran := false
	err = locker.WithLock(ctx, "quote-email:SD-7K2M9QXA", time.Minute, func(context.Context) error {
		select {
		case <-released:
		default:
			t.Error("callback ran while the first lease was held")
		}
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.False(t, mr.Exists("sdeal:lock:quote-email:SD-7K2M9QXA"))
}

func TestAcquireGivesUpAfterMaxWait(t *testing.T) {
	locker, mr := newLocker(t, 30*time.Millisecond)
	require.NoError(t, mr.Set("sdeal:lock:migrate", "other-replica"))

	called := false
	err := locker.WithLock(context.Background(), "migrate", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.False(t, called)

	got, err := mr.Get("sdeal:lock:migrate")
	require.NoError(t, err)
	require.Equal(t, "other-replica", got)
}

func TestAcquireReturnsCallerCancellation(t *testing.T) {
	locker, mr := newLocker(t, time.Minute)
	require.NoError(t, mr.Set("sdeal:lock:migrate", "other-replica"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := locker.Acquire(ctx, "migrate", time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	locker, mr := newLocker(t, time.Second)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "migrate", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "migrate", time.Minute)
	require.NoError(t, err)

	ok, err := stale.Release(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, mr.Exists("sdeal:lock:migrate"))

	ok, err = fresh.Release(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t, time.Second)
	boom := context.Canceled
	err := locker.WithLock(context.Background(), "migrate", time.Minute, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("sdeal:lock:migrate"))
}
