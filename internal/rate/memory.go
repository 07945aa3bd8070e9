package rate

import (
	"sync"
	"time"
)

type window struct {
	failures int
	start    time.Time
}

// Throttle counts failed attempts per key inside a fixed window and blocks the
// key once the limit is reached. A success clears the key.
type Throttle struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]window
	lastGC  time.Time
	now     func() time.Time
}

func NewThrottle(limit int, win time.Duration) *Throttle {
	if limit <= 0 {
		limit = 5
	}
	if win <= 0 {
		win = 15 * time.Minute
	}
	return &Throttle{limit: limit, window: win, entries: map[string]window{}, lastGC: time.Now().UTC(), now: time.Now}
}

func (t *Throttle) Blocked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	t.gcLocked(now)
	e, ok := t.entries[key]
	if !ok || now.Sub(e.start) >= t.window {
		return false
	}
	return e.failures >= t.limit
}

func (t *Throttle) Fail(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	e, ok := t.entries[key]
	if !ok || now.Sub(e.start) >= t.window {
		t.entries[key] = window{failures: 1, start: now}
		return
	}
	e.failures++
	t.entries[key] = e
}

func (t *Throttle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *Throttle) gcLocked(now time.Time) {
	if now.Sub(t.lastGC) <= time.Minute {
		return
	}
	for k, e := range t.entries {
		if now.Sub(e.start) > 2*t.window {
			delete(t.entries, k)
		}
	}
	t.lastGC = now
}
