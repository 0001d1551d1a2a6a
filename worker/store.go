package worker

import (
	"context"
	"time"

	"github.com/xraph/router/id"
)

// Store defines the persistence contract for the worker registry.
//
// RecordOffer and ConvertOffer are compare-and-swap operations: the
// capacity/concurrency check and the commit happen atomically with
// respect to every other offer mutation on the same worker.
type Store interface {
	// UpsertWorker inserts or replaces a worker's registration. Existing
	// offers and assignments are preserved when the ID already exists.
	UpsertWorker(ctx context.Context, w *Worker) error

	// GetWorker retrieves a worker snapshot by ID.
	GetWorker(ctx context.Context, workerID id.WorkerID) (*Worker, error)

	// ListWorkersByQueue returns the workers servicing the given queue,
	// in any state.
	ListWorkersByQueue(ctx context.Context, queueID id.QueueID) ([]*Worker, error)

	// ListWorkers returns all registered workers.
	ListWorkers(ctx context.Context) ([]*Worker, error)

	// DeregisterWorker marks the worker inactive without deleting history.
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// RecordOffer atomically reserves capacity for an offer. maxOffers is
	// the effective concurrent-offer cap to enforce. Fails with
	// router.ErrCapacityExceeded or router.ErrConcurrencyExceeded when
	// the reservation does not fit, and router.ErrWorkerUnavailable when
	// the worker is not eligible for offers.
	RecordOffer(ctx context.Context, workerID id.WorkerID, offer *Offer, maxOffers int) error

	// RemoveOffer removes an outstanding offer, releasing its capacity.
	// Idempotent: removing an absent offer is a no-op and returns false.
	RemoveOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID) (bool, error)

	// ConvertOffer atomically replaces an outstanding offer with an
	// active assignment carrying the same capacity cost, and stamps the
	// worker's LastAssignedAt. Fails with router.ErrRaceLost if the
	// offer is already gone.
	ConvertOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID, assignmentID id.AssignmentID, at time.Time) (*Offer, error)

	// ReleaseAssignment frees the capacity held by an active assignment.
	// Idempotent: releasing an absent assignment is a no-op.
	ReleaseAssignment(ctx context.Context, workerID id.WorkerID, assignmentID id.AssignmentID) error

	// ListOffersByJob returns every outstanding offer for a job across
	// all workers.
	ListOffersByJob(ctx context.Context, jobID id.JobID) ([]*Offer, error)

	// ListExpiredOffers returns outstanding offers whose ExpiresAt is at
	// or before the given time.
	ListExpiredOffers(ctx context.Context, asOf time.Time) ([]*Offer, error)
}
