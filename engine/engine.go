package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/router"
	"github.com/xraph/router/backoff"
	"github.com/xraph/router/clock"
	"github.com/xraph/router/dispatcher"
	"github.com/xraph/router/ext"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/observability"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
	"github.com/xraph/router/store"
	"github.com/xraph/router/worker"
)

// Engine wraps a Router with typed subsystem access and the management
// API. Use Build() to create one.
type Engine struct {
	r          *router.Router
	store      store.Store
	extensions *ext.Registry
	d          *dispatcher.Dispatcher
	limiter    *queue.Manager
	janitor    *janitor
	clk        clock.Clock
	logger     *slog.Logger

	queueConfigs []queue.Config
	declineBO    backoff.Strategy
	pendingExts  []ext.Extension
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.pendingExts = append(eng.pendingExts, e)
	}
}

// WithQueueConfig registers queue-level offer rate limits. Queues not
// listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithDeclineBackoff sets the cool-down strategy spacing re-offers to a
// worker that declined a job. If not set, backoff.DefaultStrategy() is used.
func WithDeclineBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.declineBO = b
	}
}

// WithClock sets the engine's time source. Tests inject a fake clock to
// drive offer expiry deterministically.
func WithClock(c clock.Clock) Option {
	return func(eng *Engine) {
		eng.clk = c
	}
}

// Build creates an Engine from an existing Router.
// The Router's store must implement store.Store.
func Build(r *router.Router, opts ...Option) (*Engine, error) {
	logger := r.Logger()

	if r.Store() == nil {
		return nil, router.ErrNoStore
	}
	st, ok := r.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("router: store does not implement store.Store")
	}

	eng := &Engine{
		r:          r,
		store:      st,
		extensions: ext.NewRegistry(logger),
		clk:        clock.System(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.declineBO == nil {
		eng.declineBO = backoff.DefaultStrategy()
	}

	// Register the observability metrics extension, then user extensions.
	eng.extensions.Register(observability.NewMetricsExtension())
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	eng.limiter = queue.NewManager(eng.queueConfigs...)

	config := r.Config()
	eng.d = dispatcher.New(st,
		dispatcher.WithLogger(logger),
		dispatcher.WithClock(eng.clk),
		dispatcher.WithHooks(eng.extensions),
		dispatcher.WithLimiter(eng.limiter),
		dispatcher.WithDeclineBackoff(eng.declineBO),
		dispatcher.WithDefaultOfferTTL(config.DefaultOfferTTL),
		dispatcher.WithSweepInterval(config.SweepInterval),
	)

	jan, err := newJanitor(eng.d, st, config.JanitorSchedule, config.ClosedJobRetention, eng.clk, logger)
	if err != nil {
		return nil, fmt.Errorf("router: janitor schedule: %w", err)
	}
	eng.janitor = jan

	// Wire back into the Router.
	r.SetDispatcher(eng.d)
	r.SetExtensions(eng.extensions)

	return eng, nil
}

// Start begins offer dispatching and the background janitor.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.r.Start(ctx); err != nil {
		return err
	}
	eng.janitor.Start()
	return nil
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.janitor.Stop()
	return eng.r.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Dispatcher returns the underlying dispatcher.
func (eng *Engine) Dispatcher() *dispatcher.Dispatcher { return eng.d }

// Store returns the engine's store.
func (eng *Engine) Store() store.Store { return eng.store }

// Router returns the underlying Router.
func (eng *Engine) Router() *router.Router { return eng.r }

// QueueManager returns the per-queue offer rate limiter.
func (eng *Engine) QueueManager() *queue.Manager { return eng.limiter }

// Dispatch runs one synchronous dispatch pass over the given queue. The
// background loops do this automatically on every kick; callers use it
// when they need matching to have happened before the call returns.
func (eng *Engine) Dispatch(ctx context.Context, queueID id.QueueID) error {
	return eng.d.Pass(ctx, queueID)
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// UpsertDistributionPolicy creates or replaces a distribution policy.
func (eng *Engine) UpsertDistributionPolicy(ctx context.Context, p *policy.DistributionPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.Entity = router.NewEntity()
	} else {
		p.Touch()
	}
	if err := eng.store.UpsertPolicy(ctx, p); err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

// UpsertQueue creates or replaces a queue.
func (eng *Engine) UpsertQueue(ctx context.Context, q *queue.Queue) error {
	if q.CreatedAt.IsZero() {
		q.Entity = router.NewEntity()
	} else {
		q.Touch()
	}
	if err := eng.store.UpsertQueue(ctx, q); err != nil {
		return fmt.Errorf("upsert queue: %w", err)
	}
	eng.d.Kick(q.ID)
	return nil
}

// UpsertWorker creates or replaces a worker registration. Outstanding
// offers and assignments are preserved; a worker marked unavailable keeps
// its offers until they resolve or expire but receives no new ones.
func (eng *Engine) UpsertWorker(ctx context.Context, w *worker.Worker) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.CreatedAt.IsZero() {
		w.Entity = router.NewEntity()
	} else {
		w.Touch()
	}
	if err := eng.store.UpsertWorker(ctx, w); err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}

	eng.extensions.EmitWorkerRegistered(ctx, w)

	// New or changed capacity may unblock queued jobs.
	if w.Eligible() {
		for _, qid := range w.QueueIDs {
			eng.d.Kick(qid)
		}
	}
	return nil
}

// DeregisterWorker revokes the worker's outstanding offers, requeues the
// affected jobs, and marks the worker inactive.
func (eng *Engine) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	if err := eng.d.RevokeOffersForWorker(ctx, workerID); err != nil {
		return err
	}
	if err := eng.store.DeregisterWorker(ctx, workerID); err != nil {
		return fmt.Errorf("deregister worker: %w", err)
	}
	eng.extensions.EmitWorkerDeregistered(ctx, workerID)
	return nil
}

// GetWorker returns a worker snapshot including outstanding offers and
// active assignments.
func (eng *Engine) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	return eng.store.GetWorker(ctx, workerID)
}

// ListWorkers returns all registered workers.
func (eng *Engine) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	return eng.store.ListWorkers(ctx)
}

// GetQueue returns a queue by ID.
func (eng *Engine) GetQueue(ctx context.Context, queueID id.QueueID) (*queue.Queue, error) {
	return eng.store.GetQueue(ctx, queueID)
}

// GetDistributionPolicy returns a distribution policy by ID.
func (eng *Engine) GetDistributionPolicy(ctx context.Context, policyID id.PolicyID) (*policy.DistributionPolicy, error) {
	return eng.store.GetPolicy(ctx, policyID)
}

// ──────────────────────────────────────────────────
// Job submission
// ──────────────────────────────────────────────────

// SubmitJob creates a queued job on the given channel and queue and kicks
// the dispatcher.
func (eng *Engine) SubmitJob(ctx context.Context, channel string, queueID id.QueueID, opts ...job.Option) (*job.Job, error) {
	if _, err := eng.store.GetQueue(ctx, queueID); err != nil {
		return nil, err
	}

	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}

	jobID := jobOpts.JobID
	if jobID.IsNil() {
		jobID = id.NewJobID()
	}

	j := &job.Job{
		Entity:     router.NewEntity(),
		ID:         jobID,
		Channel:    channel,
		QueueID:    queueID,
		Priority:   jobOpts.Priority,
		State:      job.StateQueued,
		EnqueuedAt: eng.clk.Now(),
	}
	if err := eng.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}

	eng.extensions.EmitJobQueued(ctx, j)
	eng.d.Kick(queueID)
	return j, nil
}

// UpsertJob submits a job, or reclassifies an existing queued job
// (priority, queue, channel) and re-kicks the dispatcher. Jobs past the
// queued state cannot be reclassified.
func (eng *Engine) UpsertJob(ctx context.Context, j *job.Job) (*job.Job, error) {
	existing, err := eng.store.GetJob(ctx, j.ID)
	if err != nil {
		if errors.Is(err, router.ErrJobNotFound) {
			return eng.SubmitJob(ctx, j.Channel, j.QueueID,
				job.WithPriority(j.Priority), job.WithJobID(j.ID))
		}
		return nil, err
	}

	if existing.State != job.StateQueued {
		return nil, fmt.Errorf("%w: cannot reclassify %s job", router.ErrInvalidTransition, existing.State)
	}

	oldQueue := existing.QueueID
	existing.Channel = j.Channel
	existing.QueueID = j.QueueID
	existing.Priority = j.Priority
	existing.Touch()
	if err := eng.store.UpdateJob(ctx, existing); err != nil {
		return nil, fmt.Errorf("upsert job: %w", err)
	}

	eng.d.Kick(existing.QueueID)
	if oldQueue != existing.QueueID {
		eng.d.Kick(oldQueue)
	}
	return existing, nil
}

// GetJob returns a job snapshot including its assignment records.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.store.GetJob(ctx, jobID)
}

// ──────────────────────────────────────────────────
// Offer resolution
// ──────────────────────────────────────────────────

// AcceptResult identifies the assignment created by a successful accept.
type AcceptResult struct {
	JobID        id.JobID        `json:"job_id"`
	WorkerID     id.WorkerID     `json:"worker_id"`
	AssignmentID id.AssignmentID `json:"assignment_id"`
}

// AcceptJobOffer converts an outstanding offer into an assignment. If the
// offer was already resolved by a competing actor it fails with
// router.ErrRaceLost; the caller should re-fetch the worker's offers.
func (eng *Engine) AcceptJobOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID) (*AcceptResult, error) {
	a, err := eng.d.Accept(ctx, workerID, offerID)
	if err != nil {
		return nil, err
	}
	return &AcceptResult{
		JobID:        a.JobID,
		WorkerID:     a.WorkerID,
		AssignmentID: a.ID,
	}, nil
}

// DeclineJobOffer removes an outstanding offer and returns its job to the
// queue. Declining an offer that is already gone is a no-op.
func (eng *Engine) DeclineJobOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID, reason string) error {
	return eng.d.Decline(ctx, workerID, offerID, reason)
}

// ──────────────────────────────────────────────────
// Job settlement
// ──────────────────────────────────────────────────

// CompleteJob marks the job's assignment as completed by its worker. The
// worker's capacity stays reserved until CloseJob.
func (eng *Engine) CompleteJob(ctx context.Context, jobID id.JobID, assignmentID id.AssignmentID) error {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	a := j.Assignment(assignmentID)
	if a == nil {
		return router.ErrAssignmentNotFound
	}

	if err := job.Transition(j, job.StateCompleted); err != nil {
		return err
	}
	now := eng.clk.Now()
	a.CompletedAt = &now

	if err := eng.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	eng.extensions.EmitJobCompleted(ctx, j, a)
	eng.logger.Info("job completed",
		slog.String("job_id", jobID.String()),
		slog.String("assignment_id", assignmentID.String()),
	)
	return nil
}

// CloseJob closes a completed job and releases the capacity its
// assignment held, which may unblock queued jobs on the worker's queues.
func (eng *Engine) CloseJob(ctx context.Context, jobID id.JobID, assignmentID id.AssignmentID) error {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	a := j.Assignment(assignmentID)
	if a == nil {
		return router.ErrAssignmentNotFound
	}

	if err := job.Transition(j, job.StateClosed); err != nil {
		return err
	}
	now := eng.clk.Now()
	a.ClosedAt = &now

	if err := eng.store.ReleaseAssignment(ctx, a.WorkerID, a.ID); err != nil {
		return fmt.Errorf("close job: release capacity: %w", err)
	}
	if err := eng.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("close job: %w", err)
	}

	eng.extensions.EmitJobClosed(ctx, j, a)
	eng.d.Kick(j.QueueID)
	eng.logger.Info("job closed",
		slog.String("job_id", jobID.String()),
		slog.String("assignment_id", assignmentID.String()),
	)
	return nil
}

// CancelJob cancels a queued or offered job. All outstanding offers for
// the job are removed before the call returns.
func (eng *Engine) CancelJob(ctx context.Context, jobID id.JobID) error {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := eng.d.RevokeOffersForJob(ctx, jobID); err != nil {
		return err
	}

	if err := job.Cancel(j, eng.clk.Now()); err != nil {
		return err
	}
	if err := eng.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}

	eng.extensions.EmitJobCancelled(ctx, j)
	eng.logger.Info("job cancelled", slog.String("job_id", jobID.String()))
	return nil
}

// ──────────────────────────────────────────────────
// Stats
// ──────────────────────────────────────────────────

// WorkerStats summarizes one worker's live load.
type WorkerStats struct {
	WorkerID          id.WorkerID `json:"worker_id"`
	Capacity          int         `json:"capacity"`
	CapacityInUse     int         `json:"capacity_in_use"`
	OutstandingOffers int         `json:"outstanding_offers"`
	ActiveAssignments int         `json:"active_assignments"`
	Eligible          bool        `json:"eligible"`
}

// Stats is a point-in-time snapshot of router load.
type Stats struct {
	JobsByState map[job.State]int64 `json:"jobs_by_state"`
	Workers     []WorkerStats       `json:"workers"`
}

// Stats returns job counts per state and per-worker load.
func (eng *Engine) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{JobsByState: make(map[job.State]int64)}

	states := []job.State{
		job.StateQueued, job.StateOffered, job.StateAssigned,
		job.StateCompleted, job.StateClosed, job.StateCancelled,
	}
	for _, state := range states {
		n, err := eng.store.CountJobs(ctx, job.CountOpts{State: state})
		if err != nil {
			return nil, fmt.Errorf("stats: count %s jobs: %w", state, err)
		}
		s.JobsByState[state] = n
	}

	workers, err := eng.store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: list workers: %w", err)
	}
	for _, w := range workers {
		s.Workers = append(s.Workers, WorkerStats{
			WorkerID:          w.ID,
			Capacity:          w.Capacity,
			CapacityInUse:     w.CapacityInUse(),
			OutstandingOffers: len(w.Offers),
			ActiveAssignments: len(w.Assignments),
			Eligible:          w.Eligible(),
		})
	}
	return s, nil
}
