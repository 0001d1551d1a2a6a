// Package ext defines the extension system for the router.
// Extensions are notified of lifecycle events (offer issued, accepted,
// expired, job assigned, etc.) and can react to them — logging, metrics,
// real-time push, audit trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/worker"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Offer lifecycle hooks
// ──────────────────────────────────────────────────

// OfferIssued is called after the dispatcher records a new offer.
type OfferIssued interface {
	OnOfferIssued(ctx context.Context, o *worker.Offer) error
}

// OfferAccepted is called after a worker accepts an offer.
type OfferAccepted interface {
	OnOfferAccepted(ctx context.Context, o *worker.Offer, assignmentID id.AssignmentID) error
}

// OfferDeclined is called after a worker declines an offer.
type OfferDeclined interface {
	OnOfferDeclined(ctx context.Context, o *worker.Offer, reason string) error
}

// OfferExpired is called when an offer passes its expiration unresolved.
type OfferExpired interface {
	OnOfferExpired(ctx context.Context, o *worker.Offer) error
}

// OfferRevoked is called when the dispatcher withdraws an offer because
// the job was assigned elsewhere, cancelled, or its worker deregistered.
type OfferRevoked interface {
	OnOfferRevoked(ctx context.Context, o *worker.Offer) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobQueued is called after a job is submitted (or returns to queued).
type JobQueued interface {
	OnJobQueued(ctx context.Context, j *job.Job) error
}

// JobAssigned is called after an accepted offer creates an assignment.
type JobAssigned interface {
	OnJobAssigned(ctx context.Context, j *job.Job, a *job.Assignment) error
}

// JobCompleted is called after the assigned worker completes the job.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, a *job.Assignment) error
}

// JobClosed is called after a completed job is closed and its capacity
// released.
type JobClosed interface {
	OnJobClosed(ctx context.Context, j *job.Job, a *job.Assignment) error
}

// JobCancelled is called after a job is explicitly cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerRegistered is called after a worker is created or replaced.
type WorkerRegistered interface {
	OnWorkerRegistered(ctx context.Context, w *worker.Worker) error
}

// WorkerDeregistered is called after a worker is deregistered.
type WorkerDeregistered interface {
	OnWorkerDeregistered(ctx context.Context, workerID id.WorkerID) error
}

// ──────────────────────────────────────────────────
// System hooks
// ──────────────────────────────────────────────────

// Shutdown is called when the router is stopping.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
