package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/escalaapp/escala/internal/cache"
)

// RateStore counts requests against a key within a rolling window.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// memoryRateStore keeps counters in process memory. Expired entries
// are swept once a minute so abandoned keys do not accumulate.
type memoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*windowCount
	clock func() time.Time
}

type windowCount struct {
	n   int
	end time.Time
}

// NewMemoryRateStore builds a process-local RateStore.
func NewMemoryRateStore() RateStore {
	s := &memoryRateStore{
		data:  make(map[string]*windowCount),
		clock: time.Now,
	}
	go s.sweep(time.NewTicker(time.Minute))
	return s
}

func (s *memoryRateStore) sweep(tick *time.Ticker) {
	for range tick.C {
		now := s.clock()
		s.mu.Lock()
		for key, w := range s.data {
			if now.After(w.end) {
				delete(s.data, key)
			}
		}
		s.mu.Unlock()
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.data[key]
	if !ok || now.After(w.end) {
		w = &windowCount{end: now.Add(window)}
		s.data[key] = w
	}
	w.n++
	return w.n, time.Until(w.end), nil
}

// cacheRateStore delegates counting to a cache.Store so every process
// pointed at the same backend shares one budget.
type cacheRateStore struct {
	store cache.Store
}

// NewRedisRateStore adapts a Redis-backed cache store.
func NewRedisRateStore(store cache.Store) RateStore { return newCacheRateStore(store) }

// NewDatabaseRateStore adapts the SQL fallback cache store.
func NewDatabaseRateStore(store cache.Store) RateStore { return newCacheRateStore(store) }

func newCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &cacheRateStore{store: store}
}

func (s *cacheRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
