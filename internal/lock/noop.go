package lock

import (
	"context"
	"time"
)

// NoOpLocker is a locker that always succeeds without coordinating anything.
// Tests that drive the service from a single goroutine use it.
type NoOpLocker struct{}

// NewNoOpLocker creates a new no-op locker.
func NewNoOpLocker() *NoOpLocker {
	return &NoOpLocker{}
}

// Acquire reports success unless ctx is done.
func (n *NoOpLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

// AcquireWithRetry reports success unless ctx is done.
func (n *NoOpLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return n.Acquire(ctx, key, ttl)
}

// Release always reports success.
func (n *NoOpLocker) Release(ctx context.Context, key string) (bool, error) {
	return true, nil
}

// Extend reports success unless ctx is done.
func (n *NoOpLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return n.Acquire(ctx, key, ttl)
}

// IsHeld always returns false.
func (n *NoOpLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	return false, ctx.Err()
}

// Ensure NoOpLocker implements Locker.
var _ Locker = (*NoOpLocker)(nil)
