package ws

import (
	"sync"
	"time"
)

// RateLimiter enforces a sliding-window cap on inbound events per user.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	history map[string][]time.Time
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one event for the user and reports whether it fits inside
// the window. Timestamps older than the window are pruned on each call.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	recent := rl.history[userID][:0]
	for _, ts := range rl.history[userID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= rl.limit {
		rl.history[userID] = recent
		return false
	}
	rl.history[userID] = append(recent, now)
	return true
}

// Forget drops a user's history, called when their connection goes away.
func (rl *RateLimiter) Forget(userID string) {
	rl.mu.Lock()
	delete(rl.history, userID)
	rl.mu.Unlock()
}
