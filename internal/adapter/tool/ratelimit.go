package tool

import (
	"sync"
	"time"
)

// RateLimiter caps outbound sends (email, messenger) to limit calls per
// sliding window. Timestamps of granted calls are kept in arrival order.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	granted []time.Time
	now     func() time.Time // for testing
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, now: time.Now}
}

// Allow reports whether another send fits in the current window and, if so,
// counts it. Denied calls are not recorded.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	// Granted timestamps are ordered, so expired ones sit at the front.
	i := 0
	for i < len(r.granted) && !r.granted[i].After(cutoff) {
		i++
	}
	r.granted = r.granted[i:]

	if len(r.granted) >= r.limit {
		return false
	}
	r.granted = append(r.granted, now)
	return true
}
