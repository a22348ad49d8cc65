package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedSenders caps tracked keys so rotating sender ids cannot
	// exhaust memory.
	maxTrackedSenders = 4096

	floodWindow  = 60 * time.Second
	floodMaxHits = 30
)

type floodEntry struct {
	windowStart time.Time
	count       int
}

// FloodLimiter bounds per-sender inbound volume with a fixed window.
// Safe for concurrent use.
type FloodLimiter struct {
	mu      sync.Mutex
	entries map[string]*floodEntry
}

func NewFloodLimiter() *FloodLimiter {
	return &FloodLimiter{entries: make(map[string]*floodEntry)}
}

// Allow reports whether the key is within its budget, counting the hit.
// Stale entries are pruned when the table approaches its cap; if the
// cap still holds, arbitrary entries are evicted.
func (r *FloodLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedSenders {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= floodWindow {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedSenders {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= floodWindow {
		r.entries[key] = &floodEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= floodMaxHits
}
