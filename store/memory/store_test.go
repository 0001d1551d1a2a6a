package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
	"github.com/xraph/router/worker"
)

func newJob(queueID id.QueueID, priority int) *job.Job {
	return &job.Job{
		Entity:     router.NewEntity(),
		ID:         id.NewJobID(),
		Channel:    "voice",
		QueueID:    queueID,
		Priority:   priority,
		State:      job.StateQueued,
		EnqueuedAt: time.Now().UTC(),
	}
}

func newWorker(capacity int, queueIDs ...id.QueueID) *worker.Worker {
	return &worker.Worker{
		Entity:   router.NewEntity(),
		ID:       id.NewWorkerID(),
		Name:     "test-worker",
		State:    worker.StateActive,
		Capacity: capacity,
		Channels: []worker.ChannelConfig{
			{Channel: "voice", CapacityCost: 1},
		},
		QueueIDs:            queueIDs,
		MaxConcurrentOffers: 5,
		AvailableForOffers:  true,
	}
}

func newOffer(jobID id.JobID, workerID id.WorkerID, cost int, ttl time.Duration) *worker.Offer {
	now := time.Now().UTC()
	return &worker.Offer{
		ID:           id.NewOfferID(),
		JobID:        jobID,
		WorkerID:     workerID,
		Channel:      "voice",
		CapacityCost: cost,
		OfferedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

func TestJobCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()
	j := newJob(queueID, 1)

	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("ID = %v, want %v", got.ID, j.ID)
	}
	if got.State != job.StateQueued {
		t.Errorf("State = %v, want %v", got.State, job.StateQueued)
	}

	got.State = job.StateOffered
	if err := s.UpdateJob(ctx, got); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	got2, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob after update: %v", err)
	}
	if got2.State != job.StateOffered {
		t.Errorf("State after update = %v, want %v", got2.State, job.StateOffered)
	}

	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, router.ErrJobNotFound) {
		t.Errorf("GetJob after delete = %v, want ErrJobNotFound", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, router.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestListQueuedJobsOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()
	base := time.Now().UTC()

	low := newJob(queueID, 1)
	low.EnqueuedAt = base
	highLate := newJob(queueID, 5)
	highLate.EnqueuedAt = base.Add(time.Second)
	highEarly := newJob(queueID, 5)
	highEarly.EnqueuedAt = base.Add(-time.Second)

	for _, j := range []*job.Job{low, highLate, highEarly} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	// A job in a different queue must not appear.
	other := newJob(id.NewQueueID(), 9)
	if err := s.CreateJob(ctx, other); err != nil {
		t.Fatalf("CreateJob other: %v", err)
	}

	jobs, err := s.ListQueuedJobs(ctx, queueID)
	if err != nil {
		t.Fatalf("ListQueuedJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	want := []id.JobID{highEarly.ID, highLate.ID, low.ID}
	for i, j := range jobs {
		if j.ID != want[i] {
			t.Errorf("jobs[%d] = %v, want %v", i, j.ID, want[i])
		}
	}
}

func TestListQueuedJobsSkipsNonQueued(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()
	j := newJob(queueID, 1)
	j.State = job.StateOffered
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	jobs, err := s.ListQueuedJobs(ctx, queueID)
	if err != nil {
		t.Fatalf("ListQueuedJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("len = %d, want 0", len(jobs))
	}
}

func TestCountJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()
	for i := 0; i < 3; i++ {
		if err := s.CreateJob(ctx, newJob(queueID, i)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	done := newJob(queueID, 0)
	done.State = job.StateClosed
	if err := s.CreateJob(ctx, done); err != nil {
		t.Fatalf("CreateJob closed: %v", err)
	}

	total, err := s.CountJobs(ctx, job.CountOpts{QueueID: queueID})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}

	queued, err := s.CountJobs(ctx, job.CountOpts{QueueID: queueID, State: job.StateQueued})
	if err != nil {
		t.Fatalf("CountJobs queued: %v", err)
	}
	if queued != 3 {
		t.Errorf("queued = %d, want 3", queued)
	}
}

func TestPurgeFinishedJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()

	stale := newJob(queueID, 0)
	stale.State = job.StateClosed
	if err := s.CreateJob(ctx, stale); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	live := newJob(queueID, 0)
	if err := s.CreateJob(ctx, live); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	n, err := s.PurgeFinishedJobs(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeFinishedJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, err := s.GetJob(ctx, stale.ID); !errors.Is(err, router.ErrJobNotFound) {
		t.Errorf("stale job still present: %v", err)
	}
	if _, err := s.GetJob(ctx, live.ID); err != nil {
		t.Errorf("live job purged: %v", err)
	}
}

func TestWorkerUpsertPreservesOffers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()
	w := newWorker(10, queueID)
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	offer := newOffer(id.NewJobID(), w.ID, 1, time.Minute)
	if err := s.RecordOffer(ctx, w.ID, offer, 5); err != nil {
		t.Fatalf("RecordOffer: %v", err)
	}

	// Re-register with a different name; the offer must survive.
	w2 := newWorker(10, queueID)
	w2.ID = w.ID
	w2.Name = "renamed"
	if err := s.UpsertWorker(ctx, w2); err != nil {
		t.Fatalf("UpsertWorker again: %v", err)
	}

	got, err := s.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "renamed")
	}
	if len(got.Offers) != 1 {
		t.Errorf("len(Offers) = %d, want 1", len(got.Offers))
	}
}

func TestRecordOfferEnforcesCapacity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(2, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	if err := s.RecordOffer(ctx, w.ID, newOffer(id.NewJobID(), w.ID, 2, time.Minute), 5); err != nil {
		t.Fatalf("first RecordOffer: %v", err)
	}
	err := s.RecordOffer(ctx, w.ID, newOffer(id.NewJobID(), w.ID, 1, time.Minute), 5)
	if !errors.Is(err, router.ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestRecordOfferEnforcesConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	if err := s.RecordOffer(ctx, w.ID, newOffer(id.NewJobID(), w.ID, 1, time.Minute), 1); err != nil {
		t.Fatalf("first RecordOffer: %v", err)
	}
	err := s.RecordOffer(ctx, w.ID, newOffer(id.NewJobID(), w.ID, 1, time.Minute), 1)
	if !errors.Is(err, router.ErrConcurrencyExceeded) {
		t.Errorf("err = %v, want ErrConcurrencyExceeded", err)
	}
}

func TestRecordOfferUnavailableWorker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	w.AvailableForOffers = false
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	err := s.RecordOffer(ctx, w.ID, newOffer(id.NewJobID(), w.ID, 1, time.Minute), 5)
	if !errors.Is(err, router.ErrWorkerUnavailable) {
		t.Errorf("err = %v, want ErrWorkerUnavailable", err)
	}
}

func TestRemoveOfferIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}
	offer := newOffer(id.NewJobID(), w.ID, 1, time.Minute)
	if err := s.RecordOffer(ctx, w.ID, offer, 5); err != nil {
		t.Fatalf("RecordOffer: %v", err)
	}

	removed, err := s.RemoveOffer(ctx, w.ID, offer.ID)
	if err != nil {
		t.Fatalf("RemoveOffer: %v", err)
	}
	if !removed {
		t.Error("removed = false, want true")
	}

	removed, err = s.RemoveOffer(ctx, w.ID, offer.ID)
	if err != nil {
		t.Fatalf("RemoveOffer again: %v", err)
	}
	if removed {
		t.Error("second remove = true, want false")
	}
}

func TestConvertOffer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}
	jobID := id.NewJobID()
	offer := newOffer(jobID, w.ID, 3, time.Minute)
	if err := s.RecordOffer(ctx, w.ID, offer, 5); err != nil {
		t.Fatalf("RecordOffer: %v", err)
	}

	assignmentID := id.NewAssignmentID()
	at := time.Now().UTC()
	converted, err := s.ConvertOffer(ctx, w.ID, offer.ID, assignmentID, at)
	if err != nil {
		t.Fatalf("ConvertOffer: %v", err)
	}
	if converted.JobID != jobID {
		t.Errorf("JobID = %v, want %v", converted.JobID, jobID)
	}

	got, err := s.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if len(got.Offers) != 0 {
		t.Errorf("len(Offers) = %d, want 0", len(got.Offers))
	}
	if len(got.Assignments) != 1 {
		t.Fatalf("len(Assignments) = %d, want 1", len(got.Assignments))
	}
	if got.Assignments[0].CapacityCost != 3 {
		t.Errorf("CapacityCost = %d, want 3", got.Assignments[0].CapacityCost)
	}
	if got.LastAssignedAt == nil || !got.LastAssignedAt.Equal(at) {
		t.Errorf("LastAssignedAt = %v, want %v", got.LastAssignedAt, at)
	}
	if got.CapacityInUse() != 3 {
		t.Errorf("CapacityInUse = %d, want 3", got.CapacityInUse())
	}
}

func TestConvertOfferRaceLost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	_, err := s.ConvertOffer(ctx, w.ID, id.NewOfferID(), id.NewAssignmentID(), time.Now())
	if !errors.Is(err, router.ErrRaceLost) {
		t.Errorf("err = %v, want ErrRaceLost", err)
	}
}

func TestReleaseAssignmentIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}
	offer := newOffer(id.NewJobID(), w.ID, 2, time.Minute)
	if err := s.RecordOffer(ctx, w.ID, offer, 5); err != nil {
		t.Fatalf("RecordOffer: %v", err)
	}
	assignmentID := id.NewAssignmentID()
	if _, err := s.ConvertOffer(ctx, w.ID, offer.ID, assignmentID, time.Now()); err != nil {
		t.Fatalf("ConvertOffer: %v", err)
	}

	if err := s.ReleaseAssignment(ctx, w.ID, assignmentID); err != nil {
		t.Fatalf("ReleaseAssignment: %v", err)
	}
	if err := s.ReleaseAssignment(ctx, w.ID, assignmentID); err != nil {
		t.Fatalf("ReleaseAssignment again: %v", err)
	}

	got, err := s.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.CapacityInUse() != 0 {
		t.Errorf("CapacityInUse = %d, want 0", got.CapacityInUse())
	}
}

func TestListOffersByJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()
	w1 := newWorker(10, queueID)
	w2 := newWorker(10, queueID)
	for _, w := range []*worker.Worker{w1, w2} {
		if err := s.UpsertWorker(ctx, w); err != nil {
			t.Fatalf("UpsertWorker: %v", err)
		}
	}

	jobID := id.NewJobID()
	if err := s.RecordOffer(ctx, w1.ID, newOffer(jobID, w1.ID, 1, time.Minute), 5); err != nil {
		t.Fatalf("RecordOffer w1: %v", err)
	}
	if err := s.RecordOffer(ctx, w2.ID, newOffer(jobID, w2.ID, 1, time.Minute), 5); err != nil {
		t.Fatalf("RecordOffer w2: %v", err)
	}
	if err := s.RecordOffer(ctx, w2.ID, newOffer(id.NewJobID(), w2.ID, 1, time.Minute), 5); err != nil {
		t.Fatalf("RecordOffer unrelated: %v", err)
	}

	offers, err := s.ListOffersByJob(ctx, jobID)
	if err != nil {
		t.Fatalf("ListOffersByJob: %v", err)
	}
	if len(offers) != 2 {
		t.Errorf("len = %d, want 2", len(offers))
	}
}

func TestListExpiredOffers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	expired := newOffer(id.NewJobID(), w.ID, 1, -time.Minute)
	live := newOffer(id.NewJobID(), w.ID, 1, time.Hour)
	for _, o := range []*worker.Offer{expired, live} {
		if err := s.RecordOffer(ctx, w.ID, o, 5); err != nil {
			t.Fatalf("RecordOffer: %v", err)
		}
	}

	got, err := s.ListExpiredOffers(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListExpiredOffers: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != expired.ID {
		t.Errorf("ID = %v, want %v", got[0].ID, expired.ID)
	}
}

func TestDeregisterWorker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	w := newWorker(10, id.NewQueueID())
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}
	if err := s.DeregisterWorker(ctx, w.ID); err != nil {
		t.Fatalf("DeregisterWorker: %v", err)
	}

	got, err := s.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.State != worker.StateInactive {
		t.Errorf("State = %v, want %v", got.State, worker.StateInactive)
	}
	if got.AvailableForOffers {
		t.Error("AvailableForOffers = true, want false")
	}
}

func TestListWorkersByQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	queueID := id.NewQueueID()
	inQueue := newWorker(10, queueID)
	outQueue := newWorker(10, id.NewQueueID())
	for _, w := range []*worker.Worker{inQueue, outQueue} {
		if err := s.UpsertWorker(ctx, w); err != nil {
			t.Fatalf("UpsertWorker: %v", err)
		}
	}

	got, err := s.ListWorkersByQueue(ctx, queueID)
	if err != nil {
		t.Fatalf("ListWorkersByQueue: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != inQueue.ID {
		t.Errorf("ID = %v, want %v", got[0].ID, inQueue.ID)
	}
}

func TestQueueCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	q := &queue.Queue{
		Entity:   router.NewEntity(),
		ID:       id.NewQueueID(),
		Name:     "support",
		PolicyID: id.NewPolicyID(),
	}
	if err := s.UpsertQueue(ctx, q); err != nil {
		t.Fatalf("UpsertQueue: %v", err)
	}

	got, err := s.GetQueue(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if got.Name != "support" {
		t.Errorf("Name = %q, want %q", got.Name, "support")
	}

	all, err := s.ListQueues(ctx)
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len = %d, want 1", len(all))
	}

	if err := s.DeleteQueue(ctx, q.ID); err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}
	if _, err := s.GetQueue(ctx, q.ID); !errors.Is(err, router.ErrQueueNotFound) {
		t.Errorf("err = %v, want ErrQueueNotFound", err)
	}
}

func TestPolicyCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	p := &policy.DistributionPolicy{
		Entity:              router.NewEntity(),
		ID:                  id.NewPolicyID(),
		Name:                "longest-idle",
		Mode:                policy.ModeLongestIdle,
		MinConcurrentOffers: 1,
		MaxConcurrentOffers: 2,
		OfferTTL:            time.Minute,
	}
	if err := s.UpsertPolicy(ctx, p); err != nil {
		t.Fatalf("UpsertPolicy: %v", err)
	}

	got, err := s.GetPolicy(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.Mode != policy.ModeLongestIdle {
		t.Errorf("Mode = %v, want %v", got.Mode, policy.ModeLongestIdle)
	}

	if err := s.DeletePolicy(ctx, p.ID); err != nil {
		t.Fatalf("DeletePolicy: %v", err)
	}
	if _, err := s.GetPolicy(ctx, p.ID); !errors.Is(err, router.ErrPolicyNotFound) {
		t.Errorf("err = %v, want ErrPolicyNotFound", err)
	}
}

func TestCopySemantics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	j := newJob(id.NewQueueID(), 1)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Mutating the returned copy must not affect the stored job.
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	got.Priority = 99

	again, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob again: %v", err)
	}
	if again.Priority != 1 {
		t.Errorf("Priority = %d, want 1", again.Priority)
	}
}
