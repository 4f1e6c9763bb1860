// Package ratelimit implements the rate-budget gate: a token bucket per
// (vendor, resource) pair that paces calls into external APIs so their own
// 429 responses never drive the local error budget.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Key identifies one bucket.
type Key struct {
	Vendor   string
	Resource string
}

// Gate holds one token-bucket limiter per (vendor, resource) key. Waiters
// on a given key are served in arrival order — the guarantee rate.Limiter
// already provides via its internal FIFO reservation queue.
type Gate struct {
	mu       sync.Mutex
	limiters map[Key]*rate.Limiter
	perSec   float64
	burst    int
}

// New builds a Gate where every key defaults to ratePerSecond tokens/sec
// and the given burst capacity, created lazily on first use.
func New(ratePerSecond float64, burst int) *Gate {
	return &Gate{
		limiters: make(map[Key]*rate.Limiter),
		perSec:   ratePerSecond,
		burst:    burst,
	}
}

func (g *Gate) limiterFor(key Key) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.perSec), g.burst)
		g.limiters[key] = l
	}
	return l
}

// Configure overrides the rate and burst for one key, replacing its
// limiter. Intended for per-vendor tuning at startup, not hot-path use.
func (g *Gate) Configure(key Key, ratePerSecond float64, burst int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiters[key] = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

// Acquire blocks until cost tokens are available on key's bucket, the
// context is cancelled, or timeout elapses — whichever comes first. A
// timed-out acquire does not consume tokens from the bucket.
func (g *Gate) Acquire(ctx context.Context, key Key, cost int, timeout time.Duration) error {
	limiter := g.limiterFor(key)

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := limiter.WaitN(waitCtx, cost); err != nil {
		if ctx.Err() == nil {
			return ErrTimedOut
		}
		return ctx.Err()
	}
	return nil
}

// ErrTimedOut is returned when an acquire's wait deadline elapses before
// tokens become available, distinct from a parent-context cancellation.
var ErrTimedOut = errTimedOut{}

type errTimedOut struct{}

func (errTimedOut) Error() string { return "ratelimit: acquire timed out" }
