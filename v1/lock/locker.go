package lock

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	latcherrors "github.com/mirkobrombin/go-latch/v1/errors"
	"github.com/mirkobrombin/go-latch/v1/metrics"
	"github.com/mirkobrombin/go-latch/v1/store"
)

const (
	// DefaultMinBackoff is the shortest pause between two acquisition attempts.
	DefaultMinBackoff = 2 * time.Millisecond
	// DefaultMaxBackoff is the longest pause between two acquisition attempts.
	DefaultMaxBackoff = 200 * time.Millisecond
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-latch/v1/lock")

// Locker acquires and releases locks stored in a store.Store. A Locker keeps
// no per-lock state and may be shared by any number of goroutines.
type Locker struct {
	store       store.Store
	tokens      TokenSource
	logger      *slog.Logger
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxAttempts int
}

// Option configures a Locker.
type Option func(*Locker)

// WithTokenSource sets where ownership tokens come from. Random UUIDs are used
// by default.
func WithTokenSource(ts TokenSource) Option {
	return func(l *Locker) {
		l.tokens = ts
	}
}

// WithLogger sets the logger used to report stale releases.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

// WithBackoff sets the window the pause between attempts is drawn from.
func WithBackoff(lo, hi time.Duration) Option {
	return func(l *Locker) {
		if lo < 0 {
			lo = 0
		}
		if hi < lo {
			hi = lo
		}
		l.minBackoff, l.maxBackoff = lo, hi
	}
}

// WithMaxAttempts bounds the number of attempts Acquire makes. Zero means no
// bound; the context is then the only way to stop waiting.
func WithMaxAttempts(n int) Option {
	return func(l *Locker) {
		l.maxAttempts = n
	}
}

// New returns a Locker backed by s.
func New(s store.Store, opts ...Option) *Locker {
	l := &Locker{
		store:      s,
		tokens:     UUIDTokens(),
		logger:     slog.Default(),
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) newHandle(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	if ttl <= 0 {
		return nil, latcherrors.ErrInvalidTTL
	}
	token, err := l.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &Handle{locker: l, key: key, token: token, ttl: ttl}, nil
}

// attempt performs one conditional set for h. A failed set may still have been
// applied by the store, so the token is cleared from the key before returning.
func (l *Locker) attempt(ctx context.Context, h *Handle) (bool, error) {
	ok, err := l.store.SetIfAbsent(ctx, h.key, h.token, h.ttl)
	if err != nil {
		l.discard(ctx, h)
		return false, err
	}
	if !ok {
		metrics.ContentionCounter.Inc()
		return false, nil
	}
	h.acquiredAt = time.Now()
	h.tracked = true
	metrics.AcquireCounter.Inc()
	metrics.HeldGauge.Inc()
	return true, nil
}

func (l *Locker) discard(ctx context.Context, h *Handle) {
	res, err := l.store.CompareAndDelete(context.WithoutCancel(ctx), h.key, h.token)
	if err == nil && res == store.Deleted {
		l.logger.Warn("latch: cleared lock left by failed attempt", "key", h.key)
	}
}

func (l *Locker) backoff() time.Duration {
	span := int64(l.maxBackoff - l.minBackoff)
	if span <= 0 {
		return l.minBackoff
	}
	return l.minBackoff + time.Duration(rand.Int63n(span+1))
}

// TryLock makes a single attempt to take key. On contention it returns a nil
// handle and false.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Handle, bool, error) {
	ctx, span := tracer.Start(ctx, "Locker.TryLock", trace.WithAttributes(attribute.String("latch.lock.key", key)))
	defer span.End()

	h, err := l.newHandle(ctx, key, ttl)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	ok, err := l.attempt(ctx, h)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("latch.lock.acquired", ok))
	if !ok {
		return nil, false, nil
	}
	return h, true, nil
}

// Acquire blocks until key is taken, ctx is done or the attempt budget runs
// out. Store errors end the wait immediately.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	ctx, span := tracer.Start(ctx, "Locker.Acquire", trace.WithAttributes(attribute.String("latch.lock.key", key)))
	defer span.End()

	h, err := l.newHandle(ctx, key, ttl)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for attempts := 1; ; attempts++ {
		ok, err := l.attempt(ctx, h)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if ok {
			span.SetAttributes(attribute.Int("latch.lock.attempts", attempts))
			return h, nil
		}
		if l.maxAttempts > 0 && attempts >= l.maxAttempts {
			span.SetAttributes(attribute.Int("latch.lock.attempts", attempts))
			return nil, latcherrors.ErrNotAcquired
		}
		t := time.NewTimer(l.backoff())
		select {
		case <-ctx.Done():
			t.Stop()
			err := ctx.Err()
			if stdErrors.Is(err, context.DeadlineExceeded) {
				err = latcherrors.ErrTimeout
			}
			span.RecordError(err)
			return nil, err
		case <-t.C:
		}
	}
}

// Release gives up the lock held through h. A nil or already released handle
// is a no-op. If the lock expired or changed hands in the meantime nothing is
// deleted, a warning is logged and nil is returned. The handle counts as
// released afterwards even when the store call fails.
func (l *Locker) Release(ctx context.Context, h *Handle) error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Locker.Release", trace.WithAttributes(attribute.String("latch.lock.key", h.key)))
	defer span.End()

	if h.tracked {
		metrics.HeldGauge.Dec()
	}
	res, err := l.store.CompareAndDelete(ctx, h.key, h.token)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("latch.lock.result", res.String()))
	if res != store.Deleted {
		metrics.StaleReleaseCounter.Inc()
		l.logger.Warn("latch: lock state changed under us", "key", h.key, "result", res.String())
		return nil
	}
	metrics.ReleaseCounter.Inc()
	return nil
}

// WithLock runs fn while holding key and releases the lock afterwards. The
// error of fn takes precedence over a release error.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	h, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	fnErr := fn(ctx)
	relErr := l.Release(context.WithoutCancel(ctx), h)
	if fnErr != nil {
		return fnErr
	}
	return relErr
}

// Restore rebuilds a handle for a lock taken elsewhere, for instance by
// another process that reported its token.
func (l *Locker) Restore(key, token string) *Handle {
	return &Handle{locker: l, key: key, token: token}
}

// Inspect returns the token currently stored for key.
func (l *Locker) Inspect(ctx context.Context, key string) (string, bool, error) {
	return l.store.Get(ctx, key)
}

// ForceRelease deletes key regardless of who holds it.
func (l *Locker) ForceRelease(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, key); err != nil {
		return err
	}
	l.logger.Warn("latch: lock force released", "key", key)
	return nil
}
