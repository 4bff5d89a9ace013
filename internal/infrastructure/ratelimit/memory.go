package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const sweepProbability = 0.01

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local CounterStore. Instances behind a load balancer
// each keep their own counts; use RedisStore there.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	sweep    func() bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
		sweep:    func() bool { return rand.Float64() < sweepProbability },
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweep() {
		s.evictExpired(now)
	}

	c, ok := s.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{count: 1, resetAt: now.Add(window)}
		s.counters[key] = c
		return Window{Count: 1, ResetAt: c.resetAt, Allowed: true}, nil
	}

	if c.count >= limit {
		return Window{Count: c.count, ResetAt: c.resetAt, Allowed: false}, nil
	}
	c.count++
	return Window{Count: c.count, ResetAt: c.resetAt, Allowed: true}, nil
}

func (s *MemoryStore) evictExpired(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.resetAt) {
			delete(s.counters, k)
		}
	}
}

// Len is the number of live and not yet swept counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
