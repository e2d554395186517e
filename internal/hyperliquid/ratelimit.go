package hyperliquid

import (
	"context"
	"sync"
	"time"
)

// Per-call weights charged against the upstream quota.
const (
	WeightFills         = 20
	WeightClearinghouse = 2
	WeightMeta          = 1
	WeightQueryTx       = 20
)

const (
	DefaultMaxWeight = 1200
	DefaultWindowMs  = 60_000

	// Upper bound on a single waiter sleep so cancellation and refills are
	// observed promptly even for large weights.
	maxPollInterval = time.Second
)

// WeightLimiter is a token bucket over a rolling window. Every upstream call
// acquires its weight before the request goes out; refill happens lazily on
// entry from elapsed-time arithmetic, so no background goroutine is needed.
type WeightLimiter struct {
	mu         sync.Mutex
	maxWeight  float64
	refillPer  time.Duration // time to earn one token
	tokens     float64
	lastRefill time.Time
}

// NewWeightLimiter creates a limiter with the given capacity over windowMs.
// Non-positive arguments fall back to the upstream defaults.
func NewWeightLimiter(maxWeight int, windowMs int64) *WeightLimiter {
	if maxWeight <= 0 {
		maxWeight = DefaultMaxWeight
	}
	if windowMs <= 0 {
		windowMs = DefaultWindowMs
	}
	return &WeightLimiter{
		maxWeight:  float64(maxWeight),
		refillPer:  time.Duration(windowMs) * time.Millisecond / time.Duration(maxWeight),
		tokens:     float64(maxWeight),
		lastRefill: time.Now(),
	}
}

// Acquire blocks until weight tokens are available, then consumes them
// atomically. It never consumes a partial amount. On context cancellation it
// returns ctx.Err() without consuming anything.
func (l *WeightLimiter) Acquire(ctx context.Context, weight int) error {
	if weight <= 0 {
		return nil
	}
	w := float64(weight)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		l.refillLocked(time.Now())
		if l.tokens >= w {
			l.tokens -= w
			l.mu.Unlock()
			return nil
		}
		// Sleep roughly until the deficit is earned, bounded so we re-check
		// cancellation at least once per second.
		wait := time.Duration((w - l.tokens) * float64(l.refillPer))
		l.mu.Unlock()

		if wait > maxPollInterval {
			wait = maxPollInterval
		}
		if wait <= 0 {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens reports the currently available weight, for the status endpoint.
func (l *WeightLimiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(time.Now())
	return l.tokens
}

// refillLocked credits tokens earned since the last refill. Caller holds mu.
func (l *WeightLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.tokens += float64(elapsed) / float64(l.refillPer)
	if l.tokens > l.maxWeight {
		l.tokens = l.maxWeight
	}
	l.lastRefill = now
}
