package store

import (
	"context"
	"encoding/base64"
	stdErrors "errors"
	"strconv"
	"time"

	nats "github.com/nats-io/nats.go"

	latcherrors "github.com/mirkobrombin/go-latch/v1/errors"
)

// NATS implements Store on top of two JetStream key-value buckets: one for
// locks, whose MaxAge acts as the lock TTL, and one without expiry for
// counters.
//
// JetStream buckets expire entries per bucket, not per key, so SetIfAbsent
// only accepts the TTL the lock bucket was created with.
type NATS struct {
	locks    nats.KeyValue
	counters nats.KeyValue
	ttl      time.Duration
}

// NATSBuckets names the buckets used by NewNATSFromJetStream.
type NATSBuckets struct {
	Locks    string
	Counters string
	// TTL is the MaxAge applied to the lock bucket when it is created.
	TTL time.Duration
}

// NewNATS returns a NATS store using existing buckets.
func NewNATS(locks, counters nats.KeyValue) (*NATS, error) {
	st, err := locks.Status()
	if err != nil {
		return nil, mapNATSErr(err)
	}
	return &NATS{locks: locks, counters: counters, ttl: st.TTL()}, nil
}

// NewNATSFromJetStream opens the configured buckets, creating them if needed.
func NewNATSFromJetStream(js nats.JetStreamContext, b NATSBuckets) (*NATS, error) {
	locks, err := openBucket(js, &nats.KeyValueConfig{Bucket: b.Locks, TTL: b.TTL})
	if err != nil {
		return nil, err
	}
	counters, err := openBucket(js, &nats.KeyValueConfig{Bucket: b.Counters})
	if err != nil {
		return nil, err
	}
	return NewNATS(locks, counters)
}

func openBucket(js nats.JetStreamContext, cfg *nats.KeyValueConfig) (nats.KeyValue, error) {
	kv, err := js.KeyValue(cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	if !stdErrors.Is(err, nats.ErrBucketNotFound) {
		return nil, mapNATSErr(err)
	}
	kv, err = js.CreateKeyValue(cfg)
	if err != nil {
		return nil, mapNATSErr(err)
	}
	return kv, nil
}

// TTL returns the lock bucket expiry.
func (s *NATS) TTL() time.Duration {
	return s.ttl
}

// natsKey encodes arbitrary keys into the restricted JetStream key alphabet.
func natsKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// SetIfAbsent implements Store.SetIfAbsent with a KV Create.
func (s *NATS) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapContextErr(err)
	}
	if ttl != s.ttl {
		return false, latcherrors.ErrUnsupportedTTL
	}
	_, err := s.locks.Create(natsKey(key), []byte(value))
	if err == nil {
		return true, nil
	}
	if isWrongLastSequence(err) {
		return false, nil
	}
	return false, mapNATSErr(err)
}

// Incr implements Store.Incr as a revision-checked read-modify-write loop.
func (s *NATS) Incr(ctx context.Context, key string) (int64, error) {
	k := natsKey(key)
	for {
		if err := ctx.Err(); err != nil {
			return 0, mapContextErr(err)
		}
		e, err := s.counters.Get(k)
		if stdErrors.Is(err, nats.ErrKeyNotFound) {
			if _, err := s.counters.Create(k, []byte("1")); err != nil {
				if isWrongLastSequence(err) {
					continue
				}
				return 0, mapNATSErr(err)
			}
			return 1, nil
		}
		if err != nil {
			return 0, mapNATSErr(err)
		}
		n, err := strconv.ParseInt(string(e.Value()), 10, 64)
		if err != nil {
			return 0, err
		}
		n++
		if _, err := s.counters.Update(k, []byte(strconv.FormatInt(n, 10)), e.Revision()); err != nil {
			if isWrongLastSequence(err) {
				continue
			}
			return 0, mapNATSErr(err)
		}
		return n, nil
	}
}

// CompareAndDelete implements Store.CompareAndDelete. The delete carries the
// revision that was read, so a concurrent write makes it fail with Aborted.
func (s *NATS) CompareAndDelete(ctx context.Context, key, value string) (CompareResult, error) {
	if err := ctx.Err(); err != nil {
		return Mismatch, mapContextErr(err)
	}
	k := natsKey(key)
	e, err := s.locks.Get(k)
	if stdErrors.Is(err, nats.ErrKeyNotFound) {
		return Mismatch, nil
	}
	if err != nil {
		return Mismatch, mapNATSErr(err)
	}
	if string(e.Value()) != value {
		return Mismatch, nil
	}
	if beforeCompareCommit != nil {
		beforeCompareCommit(ctx)
	}
	if err := s.locks.Delete(k, nats.LastRevision(e.Revision())); err != nil {
		if isWrongLastSequence(err) {
			return Aborted, nil
		}
		return Mismatch, mapNATSErr(err)
	}
	return Deleted, nil
}

// Get implements Store.Get.
func (s *NATS) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, mapContextErr(err)
	}
	e, err := s.locks.Get(natsKey(key))
	if stdErrors.Is(err, nats.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapNATSErr(err)
	}
	return string(e.Value()), true, nil
}

// Delete implements Store.Delete.
func (s *NATS) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return mapContextErr(err)
	}
	if err := s.locks.Delete(natsKey(key)); err != nil {
		return mapNATSErr(err)
	}
	return nil
}

func isWrongLastSequence(err error) bool {
	if stdErrors.Is(err, nats.ErrKeyExists) {
		return true
	}
	var apiErr *nats.APIError
	return stdErrors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}

func mapNATSErr(err error) error {
	switch {
	case stdErrors.Is(err, nats.ErrConnectionClosed):
		return latcherrors.ErrConnectionClosed
	case stdErrors.Is(err, nats.ErrTimeout):
		return latcherrors.ErrTimeout
	}
	return mapContextErr(err)
}
