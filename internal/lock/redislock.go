package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired means another holder kept the key for longer than MaxWait.
var ErrNotAcquired = errors.New("lock: not acquired")

// compareAndDelete releases a key only while it still carries our token, so an
// expired holder can never free a lock someone else has since taken.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out Redis leases shared by every replica. The API takes one
// around schema migrations and the worker one per quote e-mail.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
	MaxWait      time.Duration
}

// Lease is a held lock. It lapses on its own after the TTL it was taken with.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Key returns the full Redis key of the lease.
func (l *Lease) Key() string { return l.key }

// Release frees the lease if it is still ours. It reports whether anything
// was deleted.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	n, err := compareAndDelete.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Acquire polls until key is free or MaxWait elapses.
func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	lease := &Lease{client: l.R, key: l.Prefix + key, token: uuid.NewString()}
	for {
		ok, err := l.R.SetNX(waitCtx, lease.key, lease.token, ttl).Result()
		switch {
		case err == nil && ok:
			return lease, nil
		case err != nil && !errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrNotAcquired
		case <-time.After(backoff):
		}
	}
}

// WithLock runs fn under a lease on key and releases it afterwards, whatever
// fn returns.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _, _ = lease.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}
