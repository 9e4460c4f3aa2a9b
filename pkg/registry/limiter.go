package registry

import (
	"sync"
	"time"

	"veritas-hq/warden/pkg/ident"
)

// tokenBucket enforces one agent's rate cap.
//
// Tokens refill continuously at the configured per-minute rate, up to a
// burst capacity equal to one minute's allowance. Each admitted request
// consumes one token. Time is read through the registry's Clock so tests
// can drive refills deterministically.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
	clock      ident.Clock
}

func newTokenBucket(perMinute int, clock ident.Clock) *tokenBucket {
	capacity := float64(perMinute)
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		perSecond:  capacity / 60.0,
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

// take consumes one token if available.
func (tb *tokenBucket) take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// remaining returns the whole tokens currently available.
func (tb *tokenBucket) remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return int(tb.tokens)
}

// refillLocked adds tokens for elapsed time, up to capacity. Caller holds
// the lock.
func (tb *tokenBucket) refillLocked() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * tb.perSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
