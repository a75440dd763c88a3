// Package lock provides distributed and local locking abstractions.
// Single-node deployments use in-memory locks; multi-instance deployments
// share Redis-backed locks so that concurrent account creation serializes
// across processes.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotAcquired is returned when a lock is still held elsewhere after all retries.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker defines the interface for distributed/local locking.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another owner.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release releases a lock held by this locker.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	// Returns true if the lock was extended, false if it's not held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held by anyone.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock is a convenience wrapper for a specific lock instance.
type Lock struct {
	locker Locker
	key    string
	held   bool
}

// NewLock creates a new Lock instance.
func NewLock(locker Locker, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
	}
}

// Key returns the lock key.
func (l *Lock) Key() string {
	return l.key
}

// Acquire attempts to acquire the lock.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// AcquireWithRetry attempts to acquire the lock, retrying while it is held elsewhere.
func (l *Lock) AcquireWithRetry(ctx context.Context, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	acquired, err := l.locker.AcquireWithRetry(ctx, l.key, ttl, maxRetries, retryDelay)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// Release releases the lock.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	_, err := l.locker.Release(ctx, l.key)
	l.held = false
	return err
}

// Extend extends the lock TTL.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	extended, err := l.locker.Extend(ctx, l.key, ttl)
	if err != nil {
		return err
	}
	if !extended {
		l.held = false
	}
	return nil
}

// IsHeld returns whether the lock is held.
func (l *Lock) IsHeld() bool {
	return l.held
}

// RetryPolicy controls how WithLock waits for a contended key.
type RetryPolicy struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// WithLock runs fn while holding key. It returns ErrNotAcquired if the key
// stays held elsewhere for every attempt.
func WithLock(ctx context.Context, locker Locker, key string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	l := NewLock(locker, key)
	acquired, err := l.AcquireWithRetry(ctx, policy.TTL, policy.MaxRetries, policy.RetryDelay)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrNotAcquired
	}
	// Release with a fresh context so a cancelled caller still frees the key.
	defer l.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// Username returns a lock key reserving a username during account creation or rename.
func (lockKeys) Username(username string) string {
	return "lock:user:name:" + strings.ToLower(username)
}

// User returns a lock key serializing read-modify-write updates of one account.
func (lockKeys) User(userID int64) string {
	return "lock:user:id:" + formatID(userID)
}

// RoleSeed returns a lock key for seeding the default role catalog.
func (lockKeys) RoleSeed() string {
	return "lock:role:seed"
}
