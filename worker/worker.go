package worker

import (
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
)

// State represents the registration state of a worker.
type State string

const (
	// StateActive means the worker is registered and may receive offers.
	StateActive State = "active"
	// StateDraining means the worker keeps its assignments but receives
	// no new offers.
	StateDraining State = "draining"
	// StateInactive means the worker is deregistered. History is kept.
	StateInactive State = "inactive"
)

// ChannelConfig declares that a worker handles a channel and what share
// of its capacity one job on that channel consumes.
type ChannelConfig struct {
	Channel      string `json:"channel" msgpack:"channel"`
	CapacityCost int    `json:"capacity_cost" msgpack:"capacity_cost"`
}

// Offer is a time-bounded proposal of a specific job to a specific worker.
// It reserves CapacityCost of the worker's capacity until it is accepted,
// declined, or expires.
type Offer struct {
	ID           id.OfferID  `json:"id" msgpack:"id"`
	JobID        id.JobID    `json:"job_id" msgpack:"job_id"`
	WorkerID     id.WorkerID `json:"worker_id" msgpack:"worker_id"`
	Channel      string      `json:"channel" msgpack:"channel"`
	CapacityCost int         `json:"capacity_cost" msgpack:"capacity_cost"`
	OfferedAt    time.Time   `json:"offered_at" msgpack:"offered_at"`
	ExpiresAt    time.Time   `json:"expires_at" msgpack:"expires_at"`
}

// Expired reports whether the offer is past its expiration at the given time.
func (o *Offer) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// ActiveAssignment is the worker-side capacity reservation for an accepted
// job. It is released when the job is closed.
type ActiveAssignment struct {
	AssignmentID id.AssignmentID `json:"assignment_id" msgpack:"assignment_id"`
	JobID        id.JobID        `json:"job_id" msgpack:"job_id"`
	CapacityCost int             `json:"capacity_cost" msgpack:"capacity_cost"`
	AssignedAt   time.Time       `json:"assigned_at" msgpack:"assigned_at"`
}

// Worker holds a worker's registration, capabilities, and live load.
type Worker struct {
	router.Entity

	ID    id.WorkerID `json:"id" msgpack:"id"`
	Name  string      `json:"name,omitempty" msgpack:"name,omitempty"`
	State State       `json:"state" msgpack:"state"`

	// Capacity is the worker's total capacity budget.
	Capacity int `json:"capacity" msgpack:"capacity"`

	// Channels lists the channels the worker handles and their costs.
	Channels []ChannelConfig `json:"channels" msgpack:"channels"`

	// QueueIDs lists the queues the worker services.
	QueueIDs []id.QueueID `json:"queue_ids" msgpack:"queue_ids"`

	// MaxConcurrentOffers caps outstanding offers to this worker. The
	// dispatcher applies the lesser of this and the distribution
	// policy's cap.
	MaxConcurrentOffers int `json:"max_concurrent_offers" msgpack:"max_concurrent_offers"`

	// AvailableForOffers gates offer issuance without deregistering.
	AvailableForOffers bool `json:"available_for_offers" msgpack:"available_for_offers"`

	// Offers holds the worker's outstanding offers, oldest first.
	Offers []*Offer `json:"offers,omitempty" msgpack:"offers,omitempty"`

	// Assignments holds the worker's active capacity reservations.
	Assignments []*ActiveAssignment `json:"assignments,omitempty" msgpack:"assignments,omitempty"`

	// LastAssignedAt feeds longest-idle ranking. Nil means never assigned.
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty" msgpack:"last_assigned_at,omitempty"`
}

// Validate checks the registration config.
func (w *Worker) Validate() error {
	if w.Capacity <= 0 {
		return router.ErrInvalidCapacity
	}
	if w.MaxConcurrentOffers < 1 {
		return router.ErrInvalidConcurrency
	}
	return nil
}

// ChannelCost returns the capacity cost for a channel the worker handles.
// The second return is false if the worker does not handle the channel.
func (w *Worker) ChannelCost(channel string) (int, bool) {
	for _, c := range w.Channels {
		if c.Channel == channel {
			return c.CapacityCost, true
		}
	}
	return 0, false
}

// ServesQueue reports whether the worker is a member of the given queue.
func (w *Worker) ServesQueue(queueID id.QueueID) bool {
	for _, q := range w.QueueIDs {
		if q == queueID {
			return true
		}
	}
	return false
}

// CapacityInUse is the capacity consumed by outstanding offers plus
// active assignments.
func (w *Worker) CapacityInUse() int {
	var used int
	for _, o := range w.Offers {
		used += o.CapacityCost
	}
	for _, a := range w.Assignments {
		used += a.CapacityCost
	}
	return used
}

// RemainingCapacity is the capacity still free for new offers.
func (w *Worker) RemainingCapacity() int {
	return w.Capacity - w.CapacityInUse()
}

// Offer returns the outstanding offer with the given ID, or nil.
func (w *Worker) Offer(offerID id.OfferID) *Offer {
	for _, o := range w.Offers {
		if o.ID == offerID {
			return o
		}
	}
	return nil
}

// OfferForJob returns the outstanding offer for the given job, or nil.
func (w *Worker) OfferForJob(jobID id.JobID) *Offer {
	for _, o := range w.Offers {
		if o.JobID == jobID {
			return o
		}
	}
	return nil
}

// Eligible reports whether the worker may receive offers at all: active
// and flagged available. Capacity and concurrency are checked separately
// at offer-record time.
func (w *Worker) Eligible() bool {
	return w.State == StateActive && w.AvailableForOffers
}

// IdleSince returns the reference time for longest-idle ranking: the last
// assignment time, or registration time for workers never assigned.
func (w *Worker) IdleSince() time.Time {
	if w.LastAssignedAt != nil {
		return *w.LastAssignedAt
	}
	return w.CreatedAt
}
