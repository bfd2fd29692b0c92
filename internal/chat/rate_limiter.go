package chat

import (
	"sync"
	"time"
)

// RateLimitConfig defines the parameters for per-client message rate limiting.
type RateLimitConfig struct {
	Window      time.Duration
	MaxMessages int
}

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter counts chat messages per identity key in fixed windows. A client
// straddling a window boundary can get up to twice MaxMessages through in one
// Window; this approximation is accepted.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	windows map[string]*rateWindow
}

// NewRateLimiter creates a limiter. Non-positive values fall back to one
// second and five messages.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 5
	}

	return &RateLimiter{
		window:  cfg.Window,
		max:     cfg.MaxMessages,
		windows: make(map[string]*rateWindow),
	}
}

// Limited records one message for key at now and reports whether it exceeds
// the allowance of the current window. The message that opens a new window
// counts as the first one in it.
func (rl *RateLimiter) Limited(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		w = &rateWindow{start: now}
		rl.windows[key] = w
	} else if now.Sub(w.start) > rl.window {
		w.start = now
		w.count = 0
	}

	w.count++
	return w.count > rl.max
}

// Forget drops the window for key.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.windows, key)
	rl.mu.Unlock()
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}
