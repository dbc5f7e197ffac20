package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	mu    sync.Mutex
	day   string
	count int
}

type memoryLimiter struct {
	limit int
	now   func() time.Time

	mu       sync.RWMutex
	counters map[string]*counter
}

// NewMemoryLimiter returns a process-local Limiter. Locking is per-user:
// unrelated users never contend on a shared lock.
func NewMemoryLimiter(limit int) Limiter {
	return &memoryLimiter{
		limit:    limit,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// NewMemoryLimiterWithClock is NewMemoryLimiter with an injectable clock,
// used to test day-boundary resets.
func NewMemoryLimiterWithClock(limit int, now func() time.Time) Limiter {
	return &memoryLimiter{
		limit:    limit,
		now:      now,
		counters: make(map[string]*counter),
	}
}

func (l *memoryLimiter) Admit(_ context.Context, userID string) (Decision, error) {
	c := l.counterFor(userID)

	c.mu.Lock()
	defer c.mu.Unlock()

	day := dayKey(l.now())
	if c.day != day {
		c.day = day
		c.count = 0
	}

	if c.count >= l.limit {
		return Decision{Allowed: false, Remaining: 0, Limit: l.limit}, nil
	}

	c.count++
	return Decision{Allowed: true, Remaining: l.limit - c.count, Limit: l.limit}, nil
}

func (l *memoryLimiter) counterFor(userID string) *counter {
	l.mu.RLock()
	c, ok := l.counters[userID]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.counters[userID]; ok {
		return c
	}
	c = &counter{}
	l.counters[userID] = c
	return c
}
