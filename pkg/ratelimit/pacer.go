// Package ratelimit spaces requests out so a harvest run reads like a person
// browsing, not a crawler. The Pacer sleeps a random duration drawn from a
// configured window; the hard requests-per-minute cap lives on the HTTP
// session itself.
package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Pacer produces randomized inter-request delays within a fixed window.
type Pacer struct {
	min time.Duration
	max time.Duration
	rng *rand.Rand
}

// NewPacer creates a pacer that sleeps between min and max per call. A max at
// or below min degenerates to a fixed delay of min.
func NewPacer(min, max time.Duration) *Pacer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &Pacer{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the next randomized delay without sleeping.
func (p *Pacer) Delay() time.Duration {
	if p.max == p.min {
		return p.min
	}
	return p.min + time.Duration(p.rng.Int63n(int64(p.max-p.min)))
}

// Wait sleeps for a randomized delay, returning early with the context error
// if ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	delay := p.Delay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
