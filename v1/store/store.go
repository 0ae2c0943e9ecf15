// Package store defines the key-value primitives used by the lock and id
// generator packages, together with Redis, NATS JetStream and in-memory
// implementations.
//
// Every primitive is atomic on the backend side: callers never combine a
// separate read and write to obtain the semantics described here.
package store

import (
	"context"
	"time"
)

// beforeCompareCommit, when set, runs in CompareAndDelete between the read of
// the current value and the conditional delete.
var beforeCompareCommit func(ctx context.Context)

// CompareResult reports the outcome of a CompareAndDelete call.
type CompareResult int

const (
	// Deleted means the key held the expected value and was removed.
	Deleted CompareResult = iota
	// Mismatch means the key was missing or held a different value.
	Mismatch
	// Aborted means the key changed while being watched and nothing was applied.
	Aborted
)

func (r CompareResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case Mismatch:
		return "mismatch"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Store is the set of backend operations required by Locker and Generator.
type Store interface {
	// SetIfAbsent stores value under key only if key does not exist, attaching
	// ttl in the same operation. It reports whether the value was written.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr increments the counter stored under key by one and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// CompareAndDelete removes key only if it currently holds value.
	CompareAndDelete(ctx context.Context, key, value string) (CompareResult, error)
	// Get returns the value stored under key. The boolean reports presence.
	Get(ctx context.Context, key string) (string, bool, error)
	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error
}
