// Package policy defines distribution policies — the per-queue configuration
// that governs how offers are generated: the matching mode, the bounds on
// concurrent offers per worker, and the offer expiration.
//
// Modes are a closed set. Each mode carries an explicit ranking function;
// the dispatcher never dispatches on raw mode strings.
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/worker"
)

// Mode selects the worker ranking strategy for a queue.
type Mode string

const (
	// ModeLongestIdle ranks workers by time since their last assignment,
	// longest idle first.
	ModeLongestIdle Mode = "longest_idle"
	// ModeRoundRobin spreads offers evenly by ranking the least loaded
	// workers (fewest outstanding offers plus assignments) first.
	ModeRoundRobin Mode = "round_robin"
)

// Valid reports whether the mode is a member of the closed set.
func (m Mode) Valid() bool {
	switch m {
	case ModeLongestIdle, ModeRoundRobin:
		return true
	default:
		return false
	}
}

// Rank orders eligible workers for offer issuance. The input slice is not
// mutated. Ties break on worker ID ascending so ranking is deterministic.
func (m Mode) Rank(ws []*worker.Worker) []*worker.Worker {
	ranked := make([]*worker.Worker, len(ws))
	copy(ranked, ws)

	switch m {
	case ModeRoundRobin:
		sort.SliceStable(ranked, func(i, k int) bool {
			li := len(ranked[i].Offers) + len(ranked[i].Assignments)
			lk := len(ranked[k].Offers) + len(ranked[k].Assignments)
			if li != lk {
				return li < lk
			}
			return ranked[i].ID.String() < ranked[k].ID.String()
		})
	default: // ModeLongestIdle
		sort.SliceStable(ranked, func(i, k int) bool {
			ii, ik := ranked[i].IdleSince(), ranked[k].IdleSince()
			if !ii.Equal(ik) {
				return ii.Before(ik)
			}
			return ranked[i].ID.String() < ranked[k].ID.String()
		})
	}

	return ranked
}

// DistributionPolicy is the queue-level offer generation configuration.
type DistributionPolicy struct {
	router.Entity

	ID   id.PolicyID `json:"id" msgpack:"id"`
	Name string      `json:"name,omitempty" msgpack:"name,omitempty"`
	Mode Mode        `json:"mode" msgpack:"mode"`

	// MinConcurrentOffers is carried configuration validated against
	// MaxConcurrentOffers; dispatch does not act on it yet.
	MinConcurrentOffers int `json:"min_concurrent_offers" msgpack:"min_concurrent_offers"`

	// MaxConcurrentOffers caps outstanding offers per worker. The
	// effective cap for a worker is the lesser of this and the worker's
	// own cap. Zero means the worker cap alone applies.
	MaxConcurrentOffers int `json:"max_concurrent_offers" msgpack:"max_concurrent_offers"`

	// OfferTTL is how long an offer stays outstanding before it expires.
	// Zero falls back to the router's DefaultOfferTTL.
	OfferTTL time.Duration `json:"offer_ttl" msgpack:"offer_ttl"`
}

// Validate checks the policy configuration.
func (p *DistributionPolicy) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("router: unknown distribution mode %q", p.Mode)
	}
	if p.MaxConcurrentOffers < 0 || p.MinConcurrentOffers < 0 {
		return router.ErrInvalidConcurrency
	}
	if p.MaxConcurrentOffers > 0 && p.MinConcurrentOffers > p.MaxConcurrentOffers {
		return router.ErrInvalidConcurrency
	}
	if p.OfferTTL < 0 {
		return router.ErrInvalidOfferTTL
	}
	return nil
}

// EffectiveCap returns the concurrent-offer cap to enforce for a worker
// under this policy: the lesser of the worker's cap and the policy's cap,
// with zero on the policy side meaning unbounded.
func (p *DistributionPolicy) EffectiveCap(w *worker.Worker) int {
	limit := w.MaxConcurrentOffers
	if p.MaxConcurrentOffers > 0 && p.MaxConcurrentOffers < limit {
		limit = p.MaxConcurrentOffers
	}
	return limit
}
