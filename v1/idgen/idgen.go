package idgen

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	latcherrors "github.com/mirkobrombin/go-latch/v1/errors"
	"github.com/mirkobrombin/go-latch/v1/metrics"
)

const (
	// SequenceBits is the width of the sequence part.
	SequenceBits = 32
	// TimeBits is the width of the seconds part.
	TimeBits = 31

	// DefaultKey is the store key holding the shared counter.
	DefaultKey = "latch:idgen:seq"

	sequenceMask = 1<<SequenceBits - 1
	maxSeconds   = 1<<TimeBits - 1
)

// DefaultEpoch is the custom epoch identifiers count seconds from.
var DefaultEpoch = time.UnixMilli(1_483_200_000_000)

var tracer = otel.Tracer("github.com/mirkobrombin/go-latch/v1/idgen")

// Counter is the store primitive the generator depends on.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Generator hands out identifiers. It holds no mutable state and is safe for
// concurrent use.
type Generator struct {
	counter Counter
	key     string
	epoch   time.Time
	now     func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithKey sets the store key of the shared counter.
func WithKey(key string) Option {
	return func(g *Generator) {
		g.key = key
	}
}

// WithEpoch sets the epoch the time component is measured from.
func WithEpoch(epoch time.Time) Option {
	return func(g *Generator) {
		g.epoch = epoch
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New returns a Generator incrementing counters on c.
func New(c Counter, opts ...Option) *Generator {
	g := &Generator{counter: c, key: DefaultKey, epoch: DefaultEpoch, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Epoch returns the configured epoch.
func (g *Generator) Epoch() time.Time {
	return g.epoch
}

// NextID returns a new identifier. A failing store increment fails the call.
func (g *Generator) NextID(ctx context.Context) (uint64, error) {
	ctx, span := tracer.Start(ctx, "Generator.NextID", trace.WithAttributes(attribute.String("latch.idgen.key", g.key)))
	defer span.End()

	elapsed := g.now().UnixMilli() - g.epoch.UnixMilli()
	if elapsed < 0 {
		return 0, latcherrors.ErrClockBeforeEpoch
	}
	secs := elapsed / 1000
	if secs > maxSeconds {
		return 0, latcherrors.ErrEpochExhausted
	}
	seq, err := g.counter.Incr(ctx, g.key)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	metrics.IDCounter.Inc()
	return uint64(secs)<<SequenceBits | uint64(seq)&sequenceMask, nil
}

// Decode splits id into the second it was generated in and its sequence.
func Decode(id uint64, epoch time.Time) (time.Time, uint32) {
	secs := int64(id >> SequenceBits)
	return epoch.Add(time.Duration(secs) * time.Second), uint32(id & sequenceMask)
}
