package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer throttles outbound requests to an upstream API with a token bucket,
// plus a backoff window after the upstream answers 429.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewPacer returns a pacer allowing rps sustained requests per second with
// the given burst. rps <= 0 means unlimited.
func NewPacer(rps float64, burst int) *Pacer {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request may be sent or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return p.limiter.Wait(ctx)
}

// Backoff delays further requests by retryAfter, defaulting to 60s.
func (p *Pacer) Backoff(retryAfter time.Duration) {
	if p == nil {
		return
	}
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	p.mu.Lock()
	p.retryAt = time.Now().Add(retryAfter)
	p.mu.Unlock()
}
