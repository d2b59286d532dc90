// Package memorylimiter provides a single-node sliding-window request
// limiter. Deployments with shared state across instances use the Redis
// limiter instead.
package memorylimiter

import (
	"context"
	"sync"
	"time"
)

// Limit caps requests per key within the window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Limiter tracks request timestamps per key under a sliding window.
type Limiter struct {
	mu    sync.Mutex
	limit Limit
	seen  map[string][]int64
}

// New constructs a limiter. Non-positive fields fall back to 120 requests per
// minute.
func New(limit Limit) *Limiter {
	if limit.Requests <= 0 {
		limit.Requests = 120
	}
	if limit.Window <= 0 {
		limit.Window = time.Minute
	}
	return &Limiter{limit: limit, seen: make(map[string][]int64)}
}

// Allow reports whether the key may make another request now. Denied requests
// are not recorded, so a throttled caller does not extend its own penalty.
func (l *Limiter) Allow(_ context.Context, key string) (bool, error) {
	nowMs := time.Now().UnixMilli()
	windowStart := nowMs - l.limit.Window.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.seen[key]
	keep := 0
	for keep < len(ts) && ts[keep] < windowStart {
		keep++
	}
	ts = ts[keep:]

	if len(ts) >= l.limit.Requests {
		l.seen[key] = ts
		return false, nil
	}

	l.seen[key] = append(ts, nowMs)
	return true, nil
}

// Sweep drops keys whose entire window has elapsed. Callers that keep a
// limiter alive for many distinct keys should run this periodically.
func (l *Limiter) Sweep() {
	windowStart := time.Now().UnixMilli() - l.limit.Window.Milliseconds()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, ts := range l.seen {
		if len(ts) == 0 || ts[len(ts)-1] < windowStart {
			delete(l.seen, key)
		}
	}
}
