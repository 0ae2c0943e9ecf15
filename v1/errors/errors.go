package errors

import "errors"

var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
)

var (
	// ErrInvalidTTL is returned when a lock is requested with a non-positive TTL.
	ErrInvalidTTL = errors.New("latch: lock ttl must be positive")

	// ErrNotAcquired is returned by Acquire when the attempt budget is exhausted.
	ErrNotAcquired = errors.New("latch: lock not acquired")

	// ErrUnsupportedTTL is returned by stores that cannot honour a per-key TTL.
	ErrUnsupportedTTL = errors.New("latch: ttl not supported by store")
)

var (
	ErrClockBeforeEpoch = errors.New("latch: clock is before id epoch")
	ErrEpochExhausted   = errors.New("latch: id time component exhausted")
)
