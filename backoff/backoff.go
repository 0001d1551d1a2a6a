// Package backoff provides pluggable cool-down strategies for offer
// re-issuance. After a worker declines a job the dispatcher excludes that
// (job, worker) pair for a delay computed from the worker's decline count,
// which prevents tight decline/re-offer loops. All strategies are safe for
// concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the cool-down before a declined (job, worker) pair is
// eligible for re-offer.
type Strategy interface {
	// Delay returns how long to wait after decline n (1-indexed).
	// Decline 1 is the worker's first decline of the job.
	Delay(decline int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same cool-down regardless of decline count.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant cool-down strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the cool-down on each repeated decline.
// Delay = min(Initial * 2^(decline-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential cool-down strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(decline-1), capped at Max.
func (e *Exponential) Delay(decline int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(decline-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(decline-1), Max)].
// Jitter staggers re-offers when several workers decline the same job at
// nearly the same time.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential cool-down with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(decline-1), Max)].
func (e *ExponentialWithJitter) Delay(decline int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(decline-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default cool-down used by the dispatcher:
// Exponential with 10s initial and 5m max.
func DefaultStrategy() Strategy {
	return NewExponential(10*time.Second, 5*time.Minute)
}
