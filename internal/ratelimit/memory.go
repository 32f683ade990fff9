package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// MemoryStore is a mutex-guarded fixed-window counter for single-process
// deployments (no REDIS_URL configured). Buckets reset lazily when their
// window elapses.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (s *MemoryStore) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || now.Sub(b.windowStart) >= window {
		b = &bucket{windowStart: now}
		s.buckets[key] = b
	}
	if b.count >= limit {
		retry := window - now.Sub(b.windowStart)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	b.count++
	return Decision{Allowed: true, Remaining: limit - b.count}, nil
}
