// Package ratelimit provides fixed-window request counting keyed by client
// identity. The Redis implementation shares counters across instances; the
// local one is per-process and serves tests and single-node deployments.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether the client identified by key may proceed given a
// budget of max requests per window.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

// LocalLimiter is the process-local fixed-window counter: count up within
// the window, reset when it rolls over.
type LocalLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		l.windows[key] = w
	}

	w.count++
	return w.count <= max, nil
}
