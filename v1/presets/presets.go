package presets

import (
	"time"

	nats "github.com/nats-io/nats.go"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-latch/v1/idgen"
	"github.com/mirkobrombin/go-latch/v1/lock"
	"github.com/mirkobrombin/go-latch/v1/store"
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds every store call. Zero keeps the store default.
	Timeout time.Duration
	// IDTokens makes the locker use generator identifiers instead of UUIDs.
	IDTokens bool
}

// NATSOptions configures the connection to a JetStream enabled NATS server.
type NATSOptions struct {
	URL           string
	LockBucket    string
	CounterBucket string
	// TTL is the lock bucket MaxAge and therefore the only TTL locks may use.
	TTL      time.Duration
	IDTokens bool
}

// Latch bundles a store with the locker and id generator built on it.
type Latch struct {
	Store  store.Store
	Locker *lock.Locker
	IDs    *idgen.Generator

	close func() error
}

// Close releases the underlying connection, if any.
func (l *Latch) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

func build(s store.Store, idTokens bool, closeFn func() error, opts []lock.Option) *Latch {
	ids := idgen.New(s)
	if idTokens {
		opts = append([]lock.Option{lock.WithTokenSource(lock.IDTokens(ids))}, opts...)
	}
	return &Latch{Store: s, Locker: lock.New(s, opts...), IDs: ids, close: closeFn}
}

// NewRedis creates a Latch that keeps locks and the id counter in Redis.
func NewRedis(opts RedisOptions, lockOpts ...lock.Option) *Latch {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	var storeOpts []store.RedisOption
	if opts.Timeout > 0 {
		storeOpts = append(storeOpts, store.WithTimeout(opts.Timeout))
	}
	return build(store.NewRedis(client, storeOpts...), opts.IDTokens, client.Close, lockOpts)
}

// NewNATS creates a Latch backed by JetStream key-value buckets, creating
// them when missing.
func NewNATS(opts NATSOptions, lockOpts ...lock.Option) (*Latch, error) {
	conn, err := nats.Connect(opts.URL)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	s, err := store.NewNATSFromJetStream(js, store.NATSBuckets{
		Locks:    opts.LockBucket,
		Counters: opts.CounterBucket,
		TTL:      opts.TTL,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	closeFn := func() error {
		conn.Close()
		return nil
	}
	return build(s, opts.IDTokens, closeFn, lockOpts), nil
}

// InMemoryOptions configures a standalone in-memory Latch.
type InMemoryOptions struct {
	IDTokens bool
}

// NewInMemoryStandalone creates a Latch that lives entirely in process
// memory. Useful for local development and tests.
func NewInMemoryStandalone(opts InMemoryOptions, lockOpts ...lock.Option) *Latch {
	return build(store.NewInMemory(), opts.IDTokens, nil, lockOpts)
}
