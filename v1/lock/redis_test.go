package lock

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-latch/v1/store"
)

func newRedisLocker(t *testing.T, opts ...Option) (*Locker, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	opts = append([]Option{WithBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)
	return New(store.NewRedis(client), opts...), mr, client
}

func TestRedisJobScenario(t *testing.T) {
	a, mr, client := newRedisLocker(t)
	b := New(store.NewRedis(client))
	ctx := context.Background()

	ha, err := a.Acquire(ctx, "job:1", 5*time.Second)
	if err != nil {
		t.Fatalf("a acquire: %v", err)
	}
	if ttl := mr.TTL("job:1"); ttl != 5*time.Second {
		t.Fatalf("expected ttl 5s, got %v", ttl)
	}
	if _, ok, err := b.TryLock(ctx, "job:1", 5*time.Second); err != nil || ok {
		t.Fatalf("b should be rejected, ok %v err %v", ok, err)
	}
	if err := a.Release(ctx, ha); err != nil {
		t.Fatalf("a release: %v", err)
	}
	if mr.Exists("job:1") {
		t.Fatal("job:1 still present after release")
	}
	hb, ok, err := b.TryLock(ctx, "job:1", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("b retry: ok %v err %v", ok, err)
	}
	_ = b.Release(ctx, hb)
}

func TestRedisCrashedHolderScenario(t *testing.T) {
	var buf bytes.Buffer
	a, mr, client := newRedisLocker(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	b := New(store.NewRedis(client))
	ctx := context.Background()

	ha, ok, err := a.TryLock(ctx, "job:1", time.Second)
	if err != nil || !ok {
		t.Fatalf("a trylock: ok %v err %v", ok, err)
	}
	mr.FastForward(2 * time.Second)

	hb, ok, err := b.TryLock(ctx, "job:1", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("b should take the expired lock, ok %v err %v", ok, err)
	}
	if err := a.Release(ctx, ha); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if v, err := mr.Get("job:1"); err != nil || v != hb.Token() {
		t.Fatalf("b's lock was clobbered: %q err %v", v, err)
	}
	if !strings.Contains(buf.String(), "lock state changed under us") {
		t.Fatalf("expected stale warning, got %q", buf.String())
	}
}

func TestRedisSubSecondTTL(t *testing.T) {
	l, mr, _ := newRedisLocker(t)
	h, ok, err := l.TryLock(context.Background(), "fast", 250*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("trylock: ok %v err %v", ok, err)
	}
	if ttl := mr.TTL("fast"); ttl != 250*time.Millisecond {
		t.Fatalf("expected 250ms ttl, got %v", ttl)
	}
	_ = h.Release(context.Background())
}

func TestRedisMutualExclusion(t *testing.T) {
	_, _, client := newRedisLocker(t)
	exerciseMutualExclusion(t, store.NewRedis(client))
}

func TestRedisStoreDown(t *testing.T) {
	l, mr, _ := newRedisLocker(t)
	mr.Close()
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := l.Acquire(cctx, "k", time.Second); err == nil {
		t.Fatal("expected store error")
	}
}
