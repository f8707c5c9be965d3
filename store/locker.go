package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

var ErrLockNotObtained = errors.New("invoice lock not obtained")

// Locker serializes writers of one invoice across processes. The database row
// lock is still taken; this only keeps other instances from queueing on it.
type Locker interface {
	// Lock blocks until the invoice lock is held or ctx/wait expires. The returned
	// func releases it.
	Lock(ctx context.Context, invoiceID int) (unlock func(), err error)
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(client *redislock.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

func invoiceLockKey(invoiceID int) string {
	return fmt.Sprintf("lock:invoice:%d", invoiceID)
}

func (l *RedisLocker) Lock(ctx context.Context, invoiceID int) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.client.Obtain(waitCtx, invoiceLockKey(invoiceID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if err == redislock.ErrNotObtained || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("invoice %d: %w", invoiceID, ErrLockNotObtained)
	} else if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
