// Package ratelimit throttles mutating requests per client.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter is a fixed-window counter per client key.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	now     func() time.Time

	limit  int
	window time.Duration
	idle   time.Duration

	rejected uint64
}

type window struct {
	start    time.Time
	lastSeen time.Time
	requests int
}

// Config holds rate limiter configuration
type Config struct {
	Requests int
	Window   time.Duration
	// Idle clients are forgotten by Sweep after this long.
	Idle time.Duration
}

func DefaultConfig() Config {
	return Config{
		Requests: 120,
		Window:   time.Minute,
		Idle:     10 * time.Minute,
	}
}

func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.Requests <= 0 {
		config.Requests = def.Requests
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.Idle <= 0 {
		config.Idle = def.Idle
	}
	return &Limiter{
		clients: make(map[string]*window),
		now:     time.Now,
		limit:   config.Requests,
		window:  config.Window,
		idle:    config.Idle,
	}
}

// Allow counts a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.clients[key] = &window{start: now, lastSeen: now, requests: 1}
		return true
	}

	w.lastSeen = now
	w.requests++
	if w.requests > l.limit {
		l.rejected++
		return false
	}
	return true
}

// retryAfter is the number of seconds until key's window resets.
func (l *Limiter) retryAfter(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[key]
	if !ok {
		return 0
	}
	left := w.start.Add(l.window).Sub(l.now())
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CleanExpired forgets clients idle for longer than the idle timeout and
// returns how many were dropped.
func (l *Limiter) CleanExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	removed := 0
	for key, w := range l.clients {
		if w.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of currently tracked clients
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Rejected returns how many requests were refused so far.
func (l *Limiter) Rejected() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}

// Middleware limits requests whose method is not safe (GET, HEAD, OPTIONS).
// onLimit writes the refusal; Retry-After is already set when it runs.
func (l *Limiter) Middleware(extractKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := extractKey(r)
			if !l.Allow(key) {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter(key)))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
