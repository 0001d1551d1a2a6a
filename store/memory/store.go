package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
	"github.com/xraph/router/worker"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store    = (*Store)(nil)
	_ worker.Store = (*Store)(nil)
	_ queue.Store  = (*Store)(nil)
	_ policy.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*job.Job
	workers  map[string]*worker.Worker
	queues   map[string]*queue.Queue
	policies map[string]*policy.DistributionPolicy
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*job.Job),
		workers:  make(map[string]*worker.Worker),
		queues:   make(map[string]*queue.Queue),
		policies: make(map[string]*policy.DistributionPolicy),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// copy helpers
// ──────────────────────────────────────────────────

// copyJob returns a deep copy so callers can mutate without racing with
// the store.
func copyJob(j *job.Job) *job.Job {
	cp := *j
	if len(j.Assignments) > 0 {
		cp.Assignments = make([]*job.Assignment, len(j.Assignments))
		for i, a := range j.Assignments {
			ac := *a
			cp.Assignments[i] = &ac
		}
	}
	return &cp
}

func copyWorker(w *worker.Worker) *worker.Worker {
	cp := *w
	if len(w.Offers) > 0 {
		cp.Offers = make([]*worker.Offer, len(w.Offers))
		for i, o := range w.Offers {
			oc := *o
			cp.Offers[i] = &oc
		}
	}
	if len(w.Assignments) > 0 {
		cp.Assignments = make([]*worker.ActiveAssignment, len(w.Assignments))
		for i, a := range w.Assignments {
			ac := *a
			cp.Assignments[i] = &ac
		}
	}
	cp.Channels = append([]worker.ChannelConfig(nil), w.Channels...)
	cp.QueueIDs = append([]id.QueueID(nil), w.QueueIDs...)
	return &cp
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job in queued state.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; ok {
		return router.ErrJobAlreadyExists
	}
	m.jobs[key] = copyJob(j)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, router.ErrJobNotFound
	}
	return copyJob(j), nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return router.ErrJobNotFound
	}
	cp := copyJob(j)
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return router.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListQueuedJobs returns the queued jobs for a queue ordered by priority
// (descending) then EnqueuedAt (ascending).
func (m *Store) ListQueuedJobs(_ context.Context, queueID id.QueueID) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.State != job.StateQueued || j.QueueID != queueID {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].Priority != result[k].Priority {
			return result[i].Priority > result[k].Priority
		}
		return result[i].EnqueuedAt.Before(result[k].EnqueuedAt)
	})

	return result, nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if !opts.QueueID.IsNil() && j.QueueID != opts.QueueID {
			continue
		}
		result = append(result, copyJob(j))
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if !opts.QueueID.IsNil() && j.QueueID != opts.QueueID {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeFinishedJobs removes closed and cancelled jobs last updated before
// the given time.
func (m *Store) PurgeFinishedJobs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, j := range m.jobs {
		if j.State != job.StateClosed && j.State != job.StateCancelled {
			continue
		}
		if j.UpdatedAt.Before(before) {
			delete(m.jobs, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Worker Store
// ──────────────────────────────────────────────────

// UpsertWorker inserts or replaces a worker's registration. Existing
// offers and assignments are preserved when the ID already exists.
func (m *Store) UpsertWorker(_ context.Context, w *worker.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	cp := copyWorker(w)
	if existing, ok := m.workers[key]; ok {
		cp.Offers = existing.Offers
		cp.Assignments = existing.Assignments
		cp.LastAssignedAt = existing.LastAssignedAt
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = time.Now().UTC()
	m.workers[key] = cp
	return nil
}

// GetWorker retrieves a worker snapshot by ID.
func (m *Store) GetWorker(_ context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return nil, router.ErrWorkerNotFound
	}
	return copyWorker(w), nil
}

// ListWorkersByQueue returns the workers servicing the given queue.
func (m *Store) ListWorkersByQueue(_ context.Context, queueID id.QueueID) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*worker.Worker, 0)
	for _, w := range m.workers {
		if w.ServesQueue(queueID) {
			result = append(result, copyWorker(w))
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ID.String() < result[k].ID.String()
	})

	return result, nil
}

// ListWorkers returns all registered workers.
func (m *Store) ListWorkers(_ context.Context) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*worker.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		result = append(result, copyWorker(w))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ID.String() < result[k].ID.String()
	})

	return result, nil
}

// DeregisterWorker marks the worker inactive without deleting history.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return router.ErrWorkerNotFound
	}
	w.State = worker.StateInactive
	w.AvailableForOffers = false
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordOffer atomically reserves capacity for an offer.
func (m *Store) RecordOffer(_ context.Context, workerID id.WorkerID, offer *worker.Offer, maxOffers int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return router.ErrWorkerNotFound
	}
	if !w.Eligible() {
		return router.ErrWorkerUnavailable
	}
	if maxOffers > 0 && len(w.Offers) >= maxOffers {
		return router.ErrConcurrencyExceeded
	}
	if w.CapacityInUse()+offer.CapacityCost > w.Capacity {
		return router.ErrCapacityExceeded
	}

	oc := *offer
	w.Offers = append(w.Offers, &oc)
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveOffer removes an outstanding offer. Idempotent.
func (m *Store) RemoveOffer(_ context.Context, workerID id.WorkerID, offerID id.OfferID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return false, nil
	}

	for i, o := range w.Offers {
		if o.ID == offerID {
			w.Offers = append(w.Offers[:i], w.Offers[i+1:]...)
			w.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

// ConvertOffer atomically replaces an outstanding offer with an active
// assignment carrying the same capacity cost.
func (m *Store) ConvertOffer(_ context.Context, workerID id.WorkerID, offerID id.OfferID, assignmentID id.AssignmentID, at time.Time) (*worker.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return nil, router.ErrWorkerNotFound
	}

	for i, o := range w.Offers {
		if o.ID != offerID {
			continue
		}
		w.Offers = append(w.Offers[:i], w.Offers[i+1:]...)
		w.Assignments = append(w.Assignments, &worker.ActiveAssignment{
			AssignmentID: assignmentID,
			JobID:        o.JobID,
			CapacityCost: o.CapacityCost,
			AssignedAt:   at.UTC(),
		})
		assignedAt := at.UTC()
		w.LastAssignedAt = &assignedAt
		w.UpdatedAt = time.Now().UTC()
		oc := *o
		return &oc, nil
	}

	return nil, router.ErrRaceLost
}

// ReleaseAssignment frees the capacity held by an active assignment.
// Idempotent.
func (m *Store) ReleaseAssignment(_ context.Context, workerID id.WorkerID, assignmentID id.AssignmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return nil
	}

	for i, a := range w.Assignments {
		if a.AssignmentID == assignmentID {
			w.Assignments = append(w.Assignments[:i], w.Assignments[i+1:]...)
			w.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

// ListOffersByJob returns every outstanding offer for a job across all
// workers.
func (m *Store) ListOffersByJob(_ context.Context, jobID id.JobID) ([]*worker.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*worker.Offer
	for _, w := range m.workers {
		for _, o := range w.Offers {
			if o.JobID == jobID {
				oc := *o
				result = append(result, &oc)
			}
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ID.String() < result[k].ID.String()
	})

	return result, nil
}

// ListExpiredOffers returns outstanding offers at or past their expiration.
func (m *Store) ListExpiredOffers(_ context.Context, asOf time.Time) ([]*worker.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*worker.Offer
	for _, w := range m.workers {
		for _, o := range w.Offers {
			if o.Expired(asOf) {
				oc := *o
				result = append(result, &oc)
			}
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ExpiresAt.Before(result[k].ExpiresAt)
	})

	return result, nil
}

// ──────────────────────────────────────────────────
// Queue Store
// ──────────────────────────────────────────────────

// UpsertQueue inserts or replaces a queue.
func (m *Store) UpsertQueue(_ context.Context, q *queue.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *q
	if existing, ok := m.queues[q.ID.String()]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = time.Now().UTC()
	m.queues[q.ID.String()] = &cp
	return nil
}

// GetQueue retrieves a queue by ID.
func (m *Store) GetQueue(_ context.Context, queueID id.QueueID) (*queue.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[queueID.String()]
	if !ok {
		return nil, router.ErrQueueNotFound
	}
	cp := *q
	return &cp, nil
}

// ListQueues returns all queues.
func (m *Store) ListQueues(_ context.Context) ([]*queue.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*queue.Queue, 0, len(m.queues))
	for _, q := range m.queues {
		cp := *q
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// DeleteQueue removes a queue by ID.
func (m *Store) DeleteQueue(_ context.Context, queueID id.QueueID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := queueID.String()
	if _, ok := m.queues[key]; !ok {
		return router.ErrQueueNotFound
	}
	delete(m.queues, key)
	return nil
}

// ──────────────────────────────────────────────────
// Policy Store
// ──────────────────────────────────────────────────

// UpsertPolicy inserts or replaces a distribution policy.
func (m *Store) UpsertPolicy(_ context.Context, p *policy.DistributionPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	if existing, ok := m.policies[p.ID.String()]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = time.Now().UTC()
	m.policies[p.ID.String()] = &cp
	return nil
}

// GetPolicy retrieves a policy by ID.
func (m *Store) GetPolicy(_ context.Context, policyID id.PolicyID) (*policy.DistributionPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[policyID.String()]
	if !ok {
		return nil, router.ErrPolicyNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPolicies returns all distribution policies.
func (m *Store) ListPolicies(_ context.Context) ([]*policy.DistributionPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*policy.DistributionPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// DeletePolicy removes a policy by ID.
func (m *Store) DeletePolicy(_ context.Context, policyID id.PolicyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := policyID.String()
	if _, ok := m.policies[key]; !ok {
		return router.ErrPolicyNotFound
	}
	delete(m.policies, key)
	return nil
}
