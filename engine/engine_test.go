package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/backoff"
	"github.com/xraph/router/clock"
	"github.com/xraph/router/engine"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
	"github.com/xraph/router/store/memory"
	"github.com/xraph/router/worker"
)

// ──────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────

type env struct {
	store   *memory.Store
	clock   *clock.Fake
	eng     *engine.Engine
	queueID id.QueueID
}

func newEnv(t *testing.T, maxOffers int) *env {
	t.Helper()
	ctx := context.Background()

	s := memory.New()
	fc := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	r, err := router.New(router.WithStore(s))
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	eng, err := engine.Build(r,
		engine.WithClock(fc),
		engine.WithDeclineBackoff(backoff.NewConstant(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	pol := &policy.DistributionPolicy{
		ID:                  id.NewPolicyID(),
		Name:                "policy",
		Mode:                policy.ModeLongestIdle,
		MinConcurrentOffers: 1,
		MaxConcurrentOffers: maxOffers,
		OfferTTL:            time.Minute,
	}
	if err := eng.UpsertDistributionPolicy(ctx, pol); err != nil {
		t.Fatalf("UpsertDistributionPolicy: %v", err)
	}

	q := &queue.Queue{ID: id.NewQueueID(), Name: "queue", PolicyID: pol.ID}
	if err := eng.UpsertQueue(ctx, q); err != nil {
		t.Fatalf("UpsertQueue: %v", err)
	}

	return &env{store: s, clock: fc, eng: eng, queueID: q.ID}
}

func (e *env) registerWorker(t *testing.T, capacity, cost int) *worker.Worker {
	t.Helper()
	w := &worker.Worker{
		ID:       id.NewWorkerID(),
		Name:     "w",
		State:    worker.StateActive,
		Capacity: capacity,
		Channels: []worker.ChannelConfig{
			{Channel: "voice", CapacityCost: cost},
		},
		QueueIDs:            []id.QueueID{e.queueID},
		MaxConcurrentOffers: 10,
		AvailableForOffers:  true,
	}
	if err := e.eng.UpsertWorker(context.Background(), w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}
	return w
}

func (e *env) submit(t *testing.T, opts ...job.Option) *job.Job {
	t.Helper()
	j, err := e.eng.SubmitJob(context.Background(), "voice", e.queueID, opts...)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	return j
}

func (e *env) dispatch(t *testing.T) {
	t.Helper()
	if err := e.eng.Dispatch(context.Background(), e.queueID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func (e *env) singleOffer(t *testing.T, workerID id.WorkerID) *worker.Offer {
	t.Helper()
	w, err := e.eng.GetWorker(context.Background(), workerID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if len(w.Offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(w.Offers))
	}
	return w.Offers[0]
}

// ──────────────────────────────────────────────────
// End-to-end: submit → offer → accept → complete → close
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd_TwoJobsOneWorker(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)

	j1 := e.submit(t)
	e.dispatch(t)

	// Exactly one offer, for the first job.
	o1 := e.singleOffer(t, w.ID)
	if o1.JobID != j1.ID {
		t.Errorf("offered job = %v, want %v", o1.JobID, j1.ID)
	}

	// Second job stays queued while the cap-1 offer is outstanding.
	j2 := e.submit(t)
	e.dispatch(t)
	o1 = e.singleOffer(t, w.ID)
	if o1.JobID != j1.ID {
		t.Errorf("outstanding offer changed to %v, want %v", o1.JobID, j1.ID)
	}

	// Accept the first offer.
	res1, err := e.eng.AcceptJobOffer(ctx, w.ID, o1.ID)
	if err != nil {
		t.Fatalf("AcceptJobOffer: %v", err)
	}
	if res1.JobID != j1.ID || res1.WorkerID != w.ID {
		t.Errorf("accept result = %+v", res1)
	}

	// The freed offer slot goes to the second job.
	e.dispatch(t)
	o2 := e.singleOffer(t, w.ID)
	if o2.JobID != j2.ID {
		t.Errorf("second offer for %v, want %v", o2.JobID, j2.ID)
	}
	res2, err := e.eng.AcceptJobOffer(ctx, w.ID, o2.ID)
	if err != nil {
		t.Fatalf("AcceptJobOffer: %v", err)
	}

	// Complete and close both.
	for _, r := range []*engine.AcceptResult{res1, res2} {
		if err := e.eng.CompleteJob(ctx, r.JobID, r.AssignmentID); err != nil {
			t.Fatalf("CompleteJob: %v", err)
		}
		if err := e.eng.CloseJob(ctx, r.JobID, r.AssignmentID); err != nil {
			t.Fatalf("CloseJob: %v", err)
		}
	}

	for _, jid := range []id.JobID{j1.ID, j2.ID} {
		got, err := e.eng.GetJob(ctx, jid)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.State != job.StateClosed {
			t.Errorf("job %v state = %v, want closed", jid, got.State)
		}
		if len(got.Assignments) != 1 {
			t.Fatalf("job %v assignments = %d, want 1", jid, len(got.Assignments))
		}
		a := got.Assignments[0]
		if a.AssignedAt.IsZero() || a.CompletedAt == nil || a.ClosedAt == nil {
			t.Errorf("job %v assignment timestamps incomplete: %+v", jid, a)
		}
	}

	// All capacity released.
	ws, err := e.eng.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if ws.CapacityInUse() != 0 {
		t.Errorf("capacity in use = %d, want 0", ws.CapacityInUse())
	}
}

func TestEngine_CloseReleasesCapacity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0)

	w := e.registerWorker(t, 1, 1)

	e.submit(t)
	j2 := e.submit(t)
	e.dispatch(t)

	// Capacity 1 admits a single offer.
	o := e.singleOffer(t, w.ID)
	res, err := e.eng.AcceptJobOffer(ctx, w.ID, o.ID)
	if err != nil {
		t.Fatalf("AcceptJobOffer: %v", err)
	}

	// Completing does not free capacity yet.
	if err := e.eng.CompleteJob(ctx, res.JobID, res.AssignmentID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	e.dispatch(t)
	ws, _ := e.eng.GetWorker(ctx, w.ID)
	if len(ws.Offers) != 0 {
		t.Fatalf("offers before close = %d, want 0", len(ws.Offers))
	}

	// Closing frees the capacity; the second job gets its offer.
	if err := e.eng.CloseJob(ctx, res.JobID, res.AssignmentID); err != nil {
		t.Fatalf("CloseJob: %v", err)
	}
	e.dispatch(t)
	o2 := e.singleOffer(t, w.ID)
	if o2.JobID != j2.ID {
		t.Errorf("post-close offer for %v, want %v", o2.JobID, j2.ID)
	}
}

// ──────────────────────────────────────────────────
// Settlement guards
// ──────────────────────────────────────────────────

func TestEngine_CompleteRequiresAssignment(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	j := e.submit(t)
	err := e.eng.CompleteJob(ctx, j.ID, id.NewAssignmentID())
	if !errors.Is(err, router.ErrAssignmentNotFound) {
		t.Errorf("CompleteJob = %v, want ErrAssignmentNotFound", err)
	}
}

func TestEngine_CloseRequiresCompleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	e.submit(t)
	e.dispatch(t)

	o := e.singleOffer(t, w.ID)
	res, err := e.eng.AcceptJobOffer(ctx, w.ID, o.ID)
	if err != nil {
		t.Fatalf("AcceptJobOffer: %v", err)
	}

	if err := e.eng.CloseJob(ctx, res.JobID, res.AssignmentID); !errors.Is(err, router.ErrInvalidTransition) {
		t.Errorf("CloseJob before complete = %v, want ErrInvalidTransition", err)
	}
}

func TestEngine_AcceptRaceLost(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	e.submit(t)
	e.dispatch(t)

	o := e.singleOffer(t, w.ID)
	if _, err := e.eng.AcceptJobOffer(ctx, w.ID, o.ID); err != nil {
		t.Fatalf("AcceptJobOffer: %v", err)
	}
	if _, err := e.eng.AcceptJobOffer(ctx, w.ID, o.ID); !errors.Is(err, router.ErrRaceLost) {
		t.Errorf("second accept = %v, want ErrRaceLost", err)
	}
}

func TestEngine_DeclineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	j := e.submit(t)
	e.dispatch(t)

	o := e.singleOffer(t, w.ID)
	if err := e.eng.DeclineJobOffer(ctx, w.ID, o.ID, "busy"); err != nil {
		t.Fatalf("DeclineJobOffer: %v", err)
	}
	if err := e.eng.DeclineJobOffer(ctx, w.ID, o.ID, "busy"); err != nil {
		t.Fatalf("second DeclineJobOffer: %v", err)
	}

	got, err := e.eng.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateQueued {
		t.Errorf("job state = %v, want queued", got.State)
	}
}

// ──────────────────────────────────────────────────
// Cancellation
// ──────────────────────────────────────────────────

func TestEngine_CancelRemovesOffers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	j := e.submit(t)
	e.dispatch(t)
	e.singleOffer(t, w.ID)

	if err := e.eng.CancelJob(ctx, j.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	// Offer removal is synchronous with the cancel call.
	ws, _ := e.eng.GetWorker(ctx, w.ID)
	if len(ws.Offers) != 0 {
		t.Errorf("offers after cancel = %d, want 0", len(ws.Offers))
	}

	got, _ := e.eng.GetJob(ctx, j.ID)
	if got.State != job.StateCancelled {
		t.Errorf("job state = %v, want cancelled", got.State)
	}
	if got.CancelledAt == nil {
		t.Error("CancelledAt not stamped")
	}

	// A cancelled job never gets another offer.
	e.dispatch(t)
	ws, _ = e.eng.GetWorker(ctx, w.ID)
	if len(ws.Offers) != 0 {
		t.Errorf("offers after re-dispatch = %d, want 0", len(ws.Offers))
	}
}

func TestEngine_CancelAssignedJobFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	j := e.submit(t)
	e.dispatch(t)

	o := e.singleOffer(t, w.ID)
	if _, err := e.eng.AcceptJobOffer(ctx, w.ID, o.ID); err != nil {
		t.Fatalf("AcceptJobOffer: %v", err)
	}
	if err := e.eng.CancelJob(ctx, j.ID); !errors.Is(err, router.ErrInvalidTransition) {
		t.Errorf("CancelJob on assigned = %v, want ErrInvalidTransition", err)
	}
}

// ──────────────────────────────────────────────────
// Expiry
// ──────────────────────────────────────────────────

func TestEngine_OfferExpiryRequeues(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	j := e.submit(t)
	e.dispatch(t)
	e.singleOffer(t, w.ID)

	e.clock.Advance(2 * time.Minute)
	if err := e.eng.Dispatcher().SweepExpired(ctx); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}

	ws, _ := e.eng.GetWorker(ctx, w.ID)
	if len(ws.Offers) != 0 {
		t.Errorf("offers after expiry = %d, want 0", len(ws.Offers))
	}
	got, _ := e.eng.GetJob(ctx, j.ID)
	if got.State != job.StateQueued {
		t.Errorf("job state after expiry = %v, want queued", got.State)
	}

	// Eligible for re-offer.
	e.dispatch(t)
	o := e.singleOffer(t, w.ID)
	if o.JobID != j.ID {
		t.Errorf("re-offer for %v, want %v", o.JobID, j.ID)
	}
}

// ──────────────────────────────────────────────────
// Registration semantics
// ──────────────────────────────────────────────────

func TestEngine_SubmitToUnknownQueue(t *testing.T) {
	e := newEnv(t, 1)

	_, err := e.eng.SubmitJob(context.Background(), "voice", id.NewQueueID())
	if !errors.Is(err, router.ErrQueueNotFound) {
		t.Errorf("SubmitJob = %v, want ErrQueueNotFound", err)
	}
}

func TestEngine_UpsertWorkerValidates(t *testing.T) {
	e := newEnv(t, 1)

	w := &worker.Worker{ID: id.NewWorkerID(), State: worker.StateActive}
	err := e.eng.UpsertWorker(context.Background(), w)
	if !errors.Is(err, router.ErrInvalidCapacity) {
		t.Errorf("UpsertWorker = %v, want ErrInvalidCapacity", err)
	}
}

func TestEngine_UpsertJobReclassifies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	j := e.submit(t)
	j.Priority = 7
	updated, err := e.eng.UpsertJob(ctx, j)
	if err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	if updated.Priority != 7 {
		t.Errorf("priority = %d, want 7", updated.Priority)
	}
	if updated.State != job.StateQueued {
		t.Errorf("state = %v, want queued", updated.State)
	}
}

func TestEngine_UpsertJobCreatesWhenMissing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	j := &job.Job{
		ID:       id.NewJobID(),
		Channel:  "voice",
		QueueID:  e.queueID,
		Priority: 3,
	}
	created, err := e.eng.UpsertJob(ctx, j)
	if err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	if created.ID != j.ID {
		t.Errorf("created ID = %v, want %v", created.ID, j.ID)
	}
	if created.State != job.StateQueued {
		t.Errorf("state = %v, want queued", created.State)
	}
}

func TestEngine_UpsertJobRejectsAssigned(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	j := e.submit(t)
	e.dispatch(t)
	o := e.singleOffer(t, w.ID)
	if _, err := e.eng.AcceptJobOffer(ctx, w.ID, o.ID); err != nil {
		t.Fatalf("AcceptJobOffer: %v", err)
	}

	j.Priority = 9
	if _, err := e.eng.UpsertJob(ctx, j); !errors.Is(err, router.ErrInvalidTransition) {
		t.Errorf("UpsertJob on assigned = %v, want ErrInvalidTransition", err)
	}
}

func TestEngine_DeregisterWorkerRevokesAndRequeues(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	j := e.submit(t)
	e.dispatch(t)
	e.singleOffer(t, w.ID)

	if err := e.eng.DeregisterWorker(ctx, w.ID); err != nil {
		t.Fatalf("DeregisterWorker: %v", err)
	}

	got, _ := e.eng.GetJob(ctx, j.ID)
	if got.State != job.StateQueued {
		t.Errorf("job state = %v, want queued", got.State)
	}

	ws, err := e.eng.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if len(ws.Offers) != 0 {
		t.Errorf("offers after deregister = %d, want 0", len(ws.Offers))
	}
	if ws.Eligible() {
		t.Error("deregistered worker should not be eligible")
	}
}

// ──────────────────────────────────────────────────
// Stats
// ──────────────────────────────────────────────────

func TestEngine_Stats(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 1)

	w := e.registerWorker(t, 10, 1)
	e.submit(t)
	e.submit(t)
	e.dispatch(t)

	s, err := e.eng.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.JobsByState[job.StateOffered] != 1 {
		t.Errorf("offered = %d, want 1", s.JobsByState[job.StateOffered])
	}
	if s.JobsByState[job.StateQueued] != 1 {
		t.Errorf("queued = %d, want 1", s.JobsByState[job.StateQueued])
	}
	if len(s.Workers) != 1 {
		t.Fatalf("workers = %d, want 1", len(s.Workers))
	}
	if s.Workers[0].WorkerID != w.ID || s.Workers[0].OutstandingOffers != 1 {
		t.Errorf("worker stats = %+v", s.Workers[0])
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestEngine_BuildRequiresStore(t *testing.T) {
	r, err := router.New()
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	if _, err := engine.Build(r); !errors.Is(err, router.ErrNoStore) {
		t.Errorf("Build = %v, want ErrNoStore", err)
	}
}

func TestEngine_StartStop(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	if err := e.eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.eng.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
