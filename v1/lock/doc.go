// Package lock provides mutual exclusion across processes that share a
// key-value store.
//
// A lock is a store key whose value is an ownership token. Acquisition is a
// single atomic set-if-absent carrying the lock TTL, so a holder that crashes
// is freed by the store once the TTL elapses. Contenders that lose retry after
// a random pause drawn from a configurable window, which keeps them from
// waking in lockstep. Release deletes the key in one watched transaction and
// only while it still holds the caller's token; a lock that already expired or
// changed hands is left alone and reported as a warning.
//
// Ownership is an explicit *Handle returned by Acquire or TryLock. Handles are
// not meant to be shared: whoever holds the handle is the one goroutine that
// believes it owns the lock.
//
//	l := lock.New(store.NewRedis(client))
//	h, err := l.Acquire(ctx, "job:1", 5*time.Second)
//	if err != nil {
//		return err
//	}
//	defer l.Release(ctx, h)
package lock
