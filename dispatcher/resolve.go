package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/worker"
)

// Accept resolves an offer in the worker's favor: the offer atomically
// becomes an active assignment, the job transitions to assigned, and any
// sibling offers for the job are revoked. Returns ErrRaceLost when the
// offer was already resolved by a competing accept, decline, or expiry.
func (d *Dispatcher) Accept(ctx context.Context, workerID id.WorkerID, offerID id.OfferID) (*job.Assignment, error) {
	now := d.clock.Now()
	assignmentID := id.NewAssignmentID()

	offer, err := d.store.ConvertOffer(ctx, workerID, offerID, assignmentID, now)
	if err != nil {
		if errors.Is(err, router.ErrRaceLost) {
			return nil, router.ErrRaceLost
		}
		return nil, fmt.Errorf("accept offer: %w", err)
	}

	// The offer is gone and the assignment holds capacity. Any failure
	// from here on must release it, or the worker is stuck with an
	// assignment no job references.
	j, err := d.store.GetJob(ctx, offer.JobID)
	if err != nil {
		d.releaseAssignment(ctx, workerID, assignmentID)
		return nil, fmt.Errorf("accept offer: %w", err)
	}

	a := &job.Assignment{
		ID:           assignmentID,
		JobID:        j.ID,
		WorkerID:     workerID,
		CapacityCost: offer.CapacityCost,
		AssignedAt:   now,
	}
	j.Assignments = append(j.Assignments, a)
	if err := job.Transition(j, job.StateAssigned); err != nil {
		// The job reached a terminal state under the accept, typically a
		// concurrent cancel. The accept lost.
		d.releaseAssignment(ctx, workerID, assignmentID)
		d.logger.Debug("accept lost to job state change",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, router.ErrRaceLost
	}
	if err := d.store.UpdateJob(ctx, j); err != nil {
		d.releaseAssignment(ctx, workerID, assignmentID)
		return nil, fmt.Errorf("accept offer: %w", err)
	}

	// Revoke sibling offers so no other worker can accept the same job.
	if err := d.RevokeOffersForJob(ctx, j.ID); err != nil {
		d.logger.Warn("revoke sibling offers failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	d.cooldown.Forget(j.ID)
	d.hooks.EmitOfferAccepted(ctx, offer, assignmentID)
	d.hooks.EmitJobAssigned(ctx, j, a)
	d.Kick(j.QueueID)

	d.logger.Info("offer accepted",
		slog.String("job_id", j.ID.String()),
		slog.String("worker_id", workerID.String()),
		slog.String("assignment_id", assignmentID.String()),
	)
	return a, nil
}

// Decline resolves an offer against the worker: the offer is removed,
// the job returns to queued, and the (job, worker) pair enters a
// cool-down before the worker may be re-offered the job. Idempotent: a
// decline for an already-resolved offer is a no-op.
func (d *Dispatcher) Decline(ctx context.Context, workerID id.WorkerID, offerID id.OfferID, reason string) error {
	offer, err := d.lookupOffer(ctx, workerID, offerID)
	if err != nil || offer == nil {
		return err
	}

	removed, err := d.store.RemoveOffer(ctx, workerID, offerID)
	if err != nil {
		return fmt.Errorf("decline offer: %w", err)
	}
	if !removed {
		// Resolved concurrently; treat as success.
		return nil
	}

	d.cooldown.NoteDecline(offer.JobID, workerID, d.clock.Now())
	d.hooks.EmitOfferDeclined(ctx, offer, reason)

	if err := d.requeueJob(ctx, offer.JobID); err != nil {
		return fmt.Errorf("decline offer: %w", err)
	}

	d.logger.Info("offer declined",
		slog.String("job_id", offer.JobID.String()),
		slog.String("worker_id", workerID.String()),
		slog.String("offer_id", offerID.String()),
		slog.String("reason", reason),
	)
	return nil
}

// expireOffer removes an offer past its deadline and requeues its job.
// Idempotent: an offer already resolved is a no-op.
func (d *Dispatcher) expireOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID) error {
	offer, err := d.lookupOffer(ctx, workerID, offerID)
	if err != nil || offer == nil {
		return err
	}
	if !offer.Expired(d.clock.Now()) {
		// Scheduled deadline superseded by a fresher offer record.
		return nil
	}

	removed, err := d.store.RemoveOffer(ctx, workerID, offerID)
	if err != nil {
		return fmt.Errorf("expire offer: %w", err)
	}
	if !removed {
		return nil
	}

	d.hooks.EmitOfferExpired(ctx, offer)

	if err := d.requeueJob(ctx, offer.JobID); err != nil {
		return fmt.Errorf("expire offer: %w", err)
	}

	d.logger.Info("offer expired",
		slog.String("job_id", offer.JobID.String()),
		slog.String("worker_id", workerID.String()),
		slog.String("offer_id", offerID.String()),
	)
	return nil
}

// RevokeOffersForJob removes every outstanding offer for a job without
// requeueing it. Used on accept (sibling offers) and cancel.
func (d *Dispatcher) RevokeOffersForJob(ctx context.Context, jobID id.JobID) error {
	offers, err := d.store.ListOffersByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("revoke job offers: %w", err)
	}

	for _, o := range offers {
		removed, err := d.store.RemoveOffer(ctx, o.WorkerID, o.ID)
		if err != nil {
			return fmt.Errorf("revoke job offers: %w", err)
		}
		if removed {
			d.hooks.EmitOfferRevoked(ctx, o)
		}
	}
	return nil
}

// RevokeOffersForWorker removes every outstanding offer held by a worker
// and requeues the affected jobs. Used on deregister and drain.
func (d *Dispatcher) RevokeOffersForWorker(ctx context.Context, workerID id.WorkerID) error {
	w, err := d.store.GetWorker(ctx, workerID)
	if err != nil {
		if errors.Is(err, router.ErrWorkerNotFound) {
			return nil
		}
		return fmt.Errorf("revoke worker offers: %w", err)
	}

	for _, o := range w.Offers {
		removed, err := d.store.RemoveOffer(ctx, workerID, o.ID)
		if err != nil {
			return fmt.Errorf("revoke worker offers: %w", err)
		}
		if !removed {
			continue
		}
		d.hooks.EmitOfferRevoked(ctx, o)
		if err := d.requeueJob(ctx, o.JobID); err != nil {
			return fmt.Errorf("revoke worker offers: %w", err)
		}
	}
	return nil
}

// lookupOffer fetches an offer snapshot from its worker. A missing
// worker or offer returns (nil, nil): the offer is already resolved.
func (d *Dispatcher) lookupOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID) (*worker.Offer, error) {
	w, err := d.store.GetWorker(ctx, workerID)
	if err != nil {
		if errors.Is(err, router.ErrWorkerNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup offer: %w", err)
	}
	return w.Offer(offerID), nil
}

// releaseAssignment undoes an assignment created by ConvertOffer when a
// later step of accept fails, so the worker's capacity is not left
// reserved for an assignment no job references.
func (d *Dispatcher) releaseAssignment(ctx context.Context, workerID id.WorkerID, assignmentID id.AssignmentID) {
	if err := d.store.ReleaseAssignment(ctx, workerID, assignmentID); err != nil {
		d.logger.Warn("release assignment after failed accept",
			slog.String("worker_id", workerID.String()),
			slog.String("assignment_id", assignmentID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// requeueJob returns an offered job with no remaining offers to queued
// and kicks its queue.
func (d *Dispatcher) requeueJob(ctx context.Context, jobID id.JobID) error {
	j, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, router.ErrJobNotFound) {
			return nil
		}
		return err
	}
	if j.State != job.StateOffered {
		return nil
	}

	remaining, err := d.store.ListOffersByJob(ctx, jobID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}

	if err := job.Regress(j); err != nil {
		return err
	}
	if err := d.store.UpdateJob(ctx, j); err != nil {
		return err
	}

	d.Kick(j.QueueID)
	return nil
}
