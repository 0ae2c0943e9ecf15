package lock

import (
	"context"
	"sync/atomic"
	"time"
)

// Handle is the proof of ownership returned by a successful acquisition.
type Handle struct {
	locker     *Locker
	key        string
	token      string
	ttl        time.Duration
	acquiredAt time.Time
	tracked    bool
	released   atomic.Bool
}

// Key returns the locked key.
func (h *Handle) Key() string { return h.key }

// Token returns the ownership token written to the store.
func (h *Handle) Token() string { return h.token }

// TTL returns the expiry the lock was taken with. It is zero for restored handles.
func (h *Handle) TTL() time.Duration { return h.ttl }

// AcquiredAt returns when the lock was taken. It is zero for restored handles.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// Released reports whether Release was already called on h.
func (h *Handle) Released() bool { return h.released.Load() }

// Release is shorthand for calling Release on the Locker that produced h. A
// handle that no Locker produced releases nothing.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	return h.locker.Release(ctx, h)
}
