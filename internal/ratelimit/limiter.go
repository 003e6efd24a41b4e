// Package ratelimit implements per-IP sliding window admission control for
// the public estimate API.
//
// This is an in-process approximation: each instance counts independently,
// which is acceptable for a single-instance deployment. A multi-instance
// deployment needs a shared counter store behind the same interface.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/estimatrack/estimatrack/internal/config"
)

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is the whole number of seconds until the oldest recorded
	// request leaves the window. Zero when Allowed.
	RetryAfter int
}

// Stats is a point-in-time snapshot for the health endpoint.
type Stats struct {
	ActiveIPs      int           `json:"activeIPs"`
	ActiveRequests int           `json:"activeRequests"`
	Limit          int           `json:"maxRequestsPerWindow"`
	Window         time.Duration `json:"-"`
	WindowMillis   int64         `json:"windowMs"`
}

// Limiter tracks request timestamps per client IP inside a sliding window.
// All methods are safe for concurrent use.
type Limiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time

	limit         int
	window        time.Duration
	sweepInterval time.Duration

	// now is injectable for deterministic window tests.
	now func() time.Time

	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

// New creates a Limiter from config. The sweep goroutine is not started;
// call Start so the caller owns its lifecycle.
func New(cfg config.RateLimitConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		hits:          make(map[string][]time.Time),
		limit:         cfg.Limit,
		window:        cfg.Window,
		sweepInterval: cfg.SweepInterval,
		now:           time.Now,
		logger:        logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Allow checks and records one request for the given IP.
// Timestamps older than the window are pruned on every check, so the
// window slides rather than resetting at fixed boundaries.
func (l *Limiter) Allow(ip string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := pruneBefore(l.hits[ip], cutoff)

	if len(recent) >= l.limit {
		l.hits[ip] = recent

		// Seconds until the oldest hit exits the window, rounded up so the
		// client never retries a moment too early.
		wait := recent[0].Add(l.window).Sub(now)
		retryAfter := int((wait + time.Second - 1) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}

		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	l.hits[ip] = append(recent, now)

	return Decision{Allowed: true, Remaining: l.limit - len(recent) - 1}
}

// Stats returns a snapshot of the limiter's current occupancy.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	active := 0
	for _, timestamps := range l.hits {
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				active++
			}
		}
	}

	return Stats{
		ActiveIPs:      len(l.hits),
		ActiveRequests: active,
		Limit:          l.limit,
		Window:         l.window,
		WindowMillis:   l.window.Milliseconds(),
	}
}

// Start launches the background sweep that drops IP entries with no
// in-window timestamps, bounding memory under IP churn. It is non-blocking;
// the goroutine exits when ctx is cancelled or Stop is called.
func (l *Limiter) Start(ctx context.Context) {
	go func() {
		defer close(l.done)

		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

// Stop terminates the sweep goroutine and waits for it to exit.
func (l *Limiter) Stop() {
	close(l.stop)
	<-l.done
}

// sweep removes IP entries whose every timestamp has left the window.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	dropped := 0

	for ip, timestamps := range l.hits {
		if recent := pruneBefore(timestamps, cutoff); len(recent) == 0 {
			delete(l.hits, ip)
			dropped++
		} else {
			l.hits[ip] = recent
		}
	}

	if dropped > 0 {
		l.logger.Debug("rate limiter sweep completed",
			slog.Int("dropped_ips", dropped),
			slog.Int("active_ips", len(l.hits)),
		)
	}
}

// pruneBefore drops timestamps at or before the cutoff. Timestamps are
// appended in order, so the slice is always sorted ascending.
func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append([]time.Time(nil), timestamps[i:]...)
}
