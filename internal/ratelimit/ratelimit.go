// Package ratelimit provides the per-tenant sliding-window limiter used on
// embedding cache misses and a token-bucket pacer for outbound provider calls.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// LimitError reports that a key exceeded its window.
type LimitError struct {
	Key        string
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests per window, retry after %ds",
		e.Key, e.Limit, e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *LimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// IsLimited reports whether err is or wraps a *LimitError.
func IsLimited(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// Key builds the limiter key for a tenant, falling back to the client
// address when the tenant is unknown.
func Key(tenantID, clientIP string) string {
	if tenantID != "" {
		return "tenant:" + tenantID
	}
	if clientIP != "" {
		return "ip:" + clientIP
	}
	return "anonymous"
}

// Window is a sliding-window log limiter. Each key may record at most Limit
// events in any trailing Period.
type Window struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) WindowOption {
	return func(w *Window) { w.now = now }
}

// NewWindow returns a limiter allowing limit events per period. A limit of
// zero or less disables limiting.
func NewWindow(limit int, period time.Duration, opts ...WindowOption) *Window {
	w := &Window{
		limit:  limit,
		period: period,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Allow records n events for key, or returns a *LimitError without recording
// anything if that would exceed the limit.
func (w *Window) Allow(key string, n int) error {
	if w == nil || w.limit <= 0 || n <= 0 {
		return nil
	}
	now := w.now()
	cutoff := now.Add(-w.period)

	w.mu.Lock()
	defer w.mu.Unlock()

	log := w.events[key]
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	log = log[i:]

	if len(log)+n > w.limit {
		w.events[key] = log
		var retry time.Duration
		if len(log) > 0 {
			// the slot frees up when the oldest event needed leaves the window
			idx := min(len(log)+n-w.limit-1, len(log)-1)
			retry = log[idx].Add(w.period).Sub(now)
		} else {
			retry = w.period
		}
		return &LimitError{Key: key, Limit: w.limit, RetryAfter: retry}
	}
	for j := 0; j < n; j++ {
		log = append(log, now)
	}
	w.events[key] = log
	return nil
}
