// Package ratelimit implements fixed-window request budgets per caller.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// Memory is a process-local Limiter. Counters for windows that have ended are
// swept on the next call after the window length has passed.
type Memory struct {
	limit  int
	length time.Duration
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]window
	lastSweep time.Time
}

func NewMemory(limit int, length time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		length:  length,
		now:     time.Now,
		windows: map[string]window{},
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= m.length {
		for k, w := range m.windows {
			if now.Sub(w.start) >= m.length {
				delete(m.windows, k)
			}
		}
		m.lastSweep = now
	}

	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= m.length {
		w = window{start: now}
	}
	w.count++
	m.windows[key] = w

	return decide(m.limit, w.count, w.start.Add(m.length)), nil
}

func decide(limit, count int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
