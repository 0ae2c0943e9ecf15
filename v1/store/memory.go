package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value    string
	expireAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expireAt.IsZero() && !now.Before(i.expireAt)
}

// InMemory is a Store backed by a map. It is meant for tests and for
// coordinating goroutines of a single process.
type InMemory struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// MemoryOption configures an InMemory store.
type MemoryOption func(*InMemory)

// WithClock replaces the clock used to evaluate expiries.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemory) {
		s.now = now
	}
}

// NewInMemory returns an empty InMemory store.
func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{items: make(map[string]memoryItem), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup returns the live item for key, dropping it when expired.
// Callers must hold s.mu.
func (s *InMemory) lookup(key string) (memoryItem, bool) {
	it, ok := s.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if it.expired(s.now()) {
		delete(s.items, key)
		return memoryItem{}, false
	}
	return it, true
}

// SetIfAbsent implements Store.SetIfAbsent.
func (s *InMemory) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapContextErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	it := memoryItem{value: value}
	if ttl > 0 {
		it.expireAt = s.now().Add(ttl)
	}
	s.items[key] = it
	return true, nil
}

// Incr implements Store.Incr.
func (s *InMemory) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapContextErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if it, ok := s.lookup(key); ok {
		v, err := strconv.ParseInt(it.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = v
	}
	n++
	s.items[key] = memoryItem{value: strconv.FormatInt(n, 10)}
	return n, nil
}

// CompareAndDelete implements Store.CompareAndDelete. The map lock makes the
// compare and the delete a single step, so Aborted is never reported.
func (s *InMemory) CompareAndDelete(ctx context.Context, key, value string) (CompareResult, error) {
	if err := ctx.Err(); err != nil {
		return Mismatch, mapContextErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(key)
	if !ok || it.value != value {
		return Mismatch, nil
	}
	delete(s.items, key)
	return Deleted, nil
}

// Get implements Store.Get.
func (s *InMemory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, mapContextErr(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(key)
	if !ok {
		return "", false, nil
	}
	return it.value, true, nil
}

// Delete implements Store.Delete.
func (s *InMemory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return mapContextErr(err)
	}
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}
