package cart

import (
	"context"
	"sync"
	"time"

	"github.com/cliniccare/pharmacy-backend/pkg/redis"
)

// Locker serializes mutations of a single owner's cart. Lock blocks until the
// lock is held or the context ends; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// MutexLocker is the in-process default used when Redis is not configured.
// It only protects a single instance; multi-instance deployments need the
// Redis locker.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// NewMutexLocker builds an in-process keyed locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*ownerLock)}
}

// Lock acquires the per-key mutex.
func (l *MutexLocker) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &ownerLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	release := func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
	return release, nil
}

// RedisLocker coordinates cart mutations across instances with a Redis lock.
type RedisLocker struct {
	client *redis.Client
	retry  time.Duration
}

// NewRedisLocker builds a locker backed by the shared Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, retry: 50 * time.Millisecond}
}

// Lock spins on SET NX until the lock is held or the context ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.client.CartLockKey(key)
	for {
		token, ok, err := l.client.AcquireLock(ctx, lockKey)
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				_ = l.client.ReleaseLock(context.WithoutCancel(ctx), lockKey, token)
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
