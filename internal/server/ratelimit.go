package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/surveyforge/api-gateway/internal/domain"
	"github.com/surveyforge/api-gateway/internal/respond"
)

// Decision is the outcome of admitting one request against a client's
// current window.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// clientWindow tracks one client's fixed window. lastSeen drives TTL
// eviction of idle clients.
type clientWindow struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// Limiter is a fixed-window rate limiter keyed by client. The window starts
// at the client's first request and rolls over lazily on the next request
// after it elapses. Counting is fixed-window: a client can burst up to 2x
// the nominal rate across a window boundary. Idle entries are evicted after
// ttl so memory stays bounded under many distinct clients.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*clientWindow
	max     int
	window  time.Duration
	ttl     time.Duration
	now     func() time.Time
}

// NewLimiter creates a limiter admitting max requests per window per client.
// Idle clients are forgotten after ttl.
func NewLimiter(max int, window, ttl time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[string]*clientWindow),
		max:     max,
		window:  window,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Admit counts one request for clientKey and decides whether it is allowed.
// The increment and the comparison happen under one lock so the admission
// guarantee holds across concurrent requests.
func (l *Limiter) Admit(clientKey string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[clientKey]
	if !ok {
		w = &clientWindow{start: now}
		l.windows[clientKey] = w
	}

	// Lazy rollover: no background timer resets windows.
	if now.Sub(w.start) >= l.window {
		w.start = now
		w.count = 0
	}

	w.count++
	w.lastSeen = now

	remaining := l.max - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   w.count <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		Reset:     w.start.Add(l.window),
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run evicts idle clients until ctx is cancelled. Meant to run as a
// background goroutine from main.
func (l *Limiter) Run(ctx context.Context) {
	interval := l.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict()
		}
	}
}

// Evict removes entries idle longer than ttl and returns how many were
// removed.
func (l *Limiter) Evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, w := range l.windows {
		if now.Sub(w.lastSeen) > l.ttl {
			delete(l.windows, key)
			evicted++
		}
	}
	return evicted
}

// RateLimitMiddleware admits requests per client IP and writes normalized
// X-RateLimit-* headers on every response. Rejections are uniform 429s
// regardless of backend health.
func RateLimitMiddleware(limiter *Limiter, responder *respond.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Admit(clientKey(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(time.Until(decision.Reset).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				responder.Error(w, r, domain.NewError(domain.ErrorTypeRateLimit,
					"Too many requests, please try again later."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey derives the rate-limit key from the request's source IP.
// RealIP middleware has already resolved forwarded addresses by this point.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
