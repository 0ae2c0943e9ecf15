package store

import (
	"context"
	stdErrors "errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	latcherrors "github.com/mirkobrombin/go-latch/v1/errors"
)

const defaultRedisOpTimeout = 5 * time.Second

var errValueMismatch = stdErrors.New("value mismatch")

// Redis implements Store on top of a Redis (or Redis compatible) server.
type Redis struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*redisOptions)

type redisOptions struct {
	timeout time.Duration
}

// WithTimeout sets the per-operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.timeout = d
	}
}

// NewRedis returns a Redis store using the provided client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	o := redisOptions{timeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{client: client, timeout: o.timeout}
}

// SetIfAbsent implements Store.SetIfAbsent with SET NX. Whole-second TTLs are
// sent as EX, anything finer as PX.
func (s *Redis) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapContextErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.client.SetNX(cctx, key, value, ttl).Result()
	if err != nil {
		return false, mapRedisErr(err)
	}
	return ok, nil
}

// Incr implements Store.Incr with INCR.
func (s *Redis) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapContextErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.client.Incr(cctx, key).Result()
	if err != nil {
		return 0, mapRedisErr(err)
	}
	return n, nil
}

// CompareAndDelete implements Store.CompareAndDelete with WATCH, GET and a
// MULTI/EXEC wrapping DEL. EXEC fails when the key is touched after WATCH,
// which is reported as Aborted.
func (s *Redis) CompareAndDelete(ctx context.Context, key, value string) (CompareResult, error) {
	if err := ctx.Err(); err != nil {
		return Mismatch, mapContextErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.client.Watch(cctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(cctx, key).Result()
		if err == redis.Nil {
			return errValueMismatch
		}
		if err != nil {
			return err
		}
		if cur != value {
			return errValueMismatch
		}
		if beforeCompareCommit != nil {
			beforeCompareCommit(cctx)
		}
		_, err = tx.TxPipelined(cctx, func(pipe redis.Pipeliner) error {
			pipe.Del(cctx, key)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return Deleted, nil
	case stdErrors.Is(err, errValueMismatch):
		return Mismatch, nil
	case stdErrors.Is(err, redis.TxFailedErr):
		return Aborted, nil
	}
	return Mismatch, mapRedisErr(err)
}

// Get implements Store.Get.
func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, mapContextErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.client.Get(cctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapRedisErr(err)
	}
	return v, true, nil
}

// Delete implements Store.Delete.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return mapContextErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Del(cctx, key).Err(); err != nil {
		return mapRedisErr(err)
	}
	return nil
}

func mapRedisErr(err error) error {
	if stdErrors.Is(err, redis.ErrClosed) {
		return latcherrors.ErrConnectionClosed
	}
	return mapContextErr(err)
}

func mapContextErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return latcherrors.ErrTimeout
	}
	return err
}
