package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/router"
	"github.com/xraph/router/backoff"
	"github.com/xraph/router/clock"
	"github.com/xraph/router/ext"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
	"github.com/xraph/router/store"
	"github.com/xraph/router/worker"
)

// tracerName is the instrumentation scope name for dispatch tracing.
const tracerName = "github.com/xraph/router/dispatcher"

// Dispatcher matches queued jobs to workers and owns offer resolution.
type Dispatcher struct {
	store    store.Store
	logger   *slog.Logger
	clock    clock.Clock
	tracer   trace.Tracer
	hooks    *ext.Registry
	limiter  *queue.Manager
	cooldown *cooldownTracker
	expiry   *expirySchedule

	defaultOfferTTL time.Duration
	sweepInterval   time.Duration

	mu      sync.Mutex
	loops   map[string]*queueLoop
	started bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// queueLoop serializes dispatch passes for one queue.
type queueLoop struct {
	queueID id.QueueID
	kick    chan struct{}

	// running reports whether a consumer goroutine is draining kick.
	// Guarded by Dispatcher.mu. Entries created by synchronous Pass
	// callers start without one; Kick starts it on demand, and it is
	// cleared when the goroutine exits so Stop/Start restarts cleanly.
	running bool

	// passMu is the per-queue writer lock: the loop goroutine and any
	// synchronous Pass caller contend on it.
	passMu sync.Mutex
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock sets the time source. Tests inject a fake clock to drive
// offer expiry deterministically.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithHooks sets the extension registry receiving lifecycle events.
func WithHooks(r *ext.Registry) Option {
	return func(d *Dispatcher) { d.hooks = r }
}

// WithLimiter sets the per-queue offer rate limiter.
func WithLimiter(m *queue.Manager) Option {
	return func(d *Dispatcher) { d.limiter = m }
}

// WithDeclineBackoff sets the strategy spacing re-offers to a worker
// that declined a job.
func WithDeclineBackoff(s backoff.Strategy) Option {
	return func(d *Dispatcher) { d.cooldown = newCooldownTracker(s) }
}

// WithDefaultOfferTTL sets the offer lifetime used when a distribution
// policy does not specify one.
func WithDefaultOfferTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.defaultOfferTTL = ttl }
}

// WithSweepInterval sets how often the backstop expiry sweep runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.sweepInterval = interval }
}

// WithTracer sets the tracer. Defaults to the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New creates a Dispatcher on top of the given store.
func New(s store.Store, opts ...Option) *Dispatcher {
	cfg := router.DefaultConfig()
	d := &Dispatcher{
		store:           s,
		logger:          slog.Default(),
		clock:           clock.System(),
		tracer:          otel.Tracer(tracerName),
		hooks:           ext.NewRegistry(nil),
		limiter:         queue.NewManager(),
		cooldown:        newCooldownTracker(backoff.DefaultStrategy()),
		expiry:          newExpirySchedule(),
		defaultOfferTTL: cfg.DefaultOfferTTL,
		sweepInterval:   cfg.SweepInterval,
		loops:           make(map[string]*queueLoop),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the expiry and sweep loops. Queue loops start lazily on
// the first kick for their queue.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}
	d.runCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.started = true

	d.wg.Add(2)
	go d.expiryLoop(d.runCtx)
	go d.sweepLoop(d.runCtx)

	d.logger.Info("dispatcher started",
		slog.Duration("default_offer_ttl", d.defaultOfferTTL),
		slog.Duration("sweep_interval", d.sweepInterval),
	)
	return nil
}

// Stop halts all loops and waits for in-flight passes to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.cancel()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kick schedules a dispatch pass for the queue. Non-blocking; multiple
// kicks while a pass is running coalesce into one follow-up pass.
func (d *Dispatcher) Kick(queueID id.QueueID) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	loop := d.loops[queueID.String()]
	if loop == nil {
		loop = &queueLoop{
			queueID: queueID,
			kick:    make(chan struct{}, 1),
		}
		d.loops[queueID.String()] = loop
	}
	if !loop.running {
		loop.running = true
		d.wg.Add(1)
		go d.runQueueLoop(d.runCtx, loop)
	}
	d.mu.Unlock()

	select {
	case loop.kick <- struct{}{}:
	default:
	}
}

// runQueueLoop is the single writer for one queue's dispatch passes.
func (d *Dispatcher) runQueueLoop(ctx context.Context, loop *queueLoop) {
	defer func() {
		d.mu.Lock()
		loop.running = false
		d.mu.Unlock()
		d.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-loop.kick:
			if err := d.Pass(ctx, loop.queueID); err != nil {
				d.logger.Error("dispatch pass failed",
					slog.String("queue_id", loop.queueID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Pass runs one dispatch pass over the queue to a fixed point: it keeps
// matching queued jobs to workers until an iteration makes no progress.
// Passes for the same queue serialize; callers may invoke Pass directly
// for synchronous dispatch (tests, janitor).
func (d *Dispatcher) Pass(ctx context.Context, queueID id.QueueID) error {
	loop := d.loopFor(queueID)
	loop.passMu.Lock()
	defer loop.passMu.Unlock()

	ctx, span := d.tracer.Start(ctx, "router.dispatch.pass",
		trace.WithAttributes(attribute.String("router.queue.id", queueID.String())),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	matched, err := d.passLocked(ctx, queueID)
	span.SetAttributes(attribute.Int("router.offers.issued", matched))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// loopFor returns the queue's loop entry, creating it without starting a
// goroutine. Synchronous Pass callers need only the mutex.
func (d *Dispatcher) loopFor(queueID id.QueueID) *queueLoop {
	d.mu.Lock()
	defer d.mu.Unlock()

	loop := d.loops[queueID.String()]
	if loop == nil {
		loop = &queueLoop{
			queueID: queueID,
			kick:    make(chan struct{}, 1),
		}
		d.loops[queueID.String()] = loop
	}
	return loop
}

func (d *Dispatcher) passLocked(ctx context.Context, queueID id.QueueID) (int, error) {
	q, err := d.store.GetQueue(ctx, queueID)
	if err != nil {
		if errors.Is(err, router.ErrQueueNotFound) {
			return 0, nil
		}
		return 0, err
	}

	pol, err := d.store.GetPolicy(ctx, q.PolicyID)
	if err != nil {
		if errors.Is(err, router.ErrPolicyNotFound) {
			d.logger.Warn("queue has no distribution policy, skipping pass",
				slog.String("queue_id", queueID.String()),
				slog.String("policy_id", q.PolicyID.String()),
			)
			return 0, nil
		}
		return 0, err
	}

	var total int
	for {
		matched, err := d.matchOnce(ctx, queueID, pol)
		if err != nil {
			return total, err
		}
		if matched == 0 {
			return total, nil
		}
		total += matched
	}
}

// matchOnce walks the queued jobs once, issuing at most one offer per
// job. Returns the number of offers issued.
func (d *Dispatcher) matchOnce(ctx context.Context, queueID id.QueueID, pol *policy.DistributionPolicy) (int, error) {
	jobs, err := d.store.ListQueuedJobs(ctx, queueID)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	workers, err := d.store.ListWorkersByQueue(ctx, queueID)
	if err != nil {
		return 0, err
	}
	if len(workers) == 0 {
		return 0, nil
	}

	var matched int
	for _, j := range jobs {
		if !d.limiter.AllowOffer(queueID) {
			// Throttled; remaining jobs wait for the next kick.
			return matched, nil
		}
		if d.matchJob(ctx, j, pol, workers) {
			matched++
			// Worker snapshots are stale after a successful match.
			workers, err = d.store.ListWorkersByQueue(ctx, queueID)
			if err != nil {
				return matched, err
			}
		}
	}
	return matched, nil
}

// matchJob offers the job to the top-ranked eligible worker. Capacity
// and concurrency misses skip to the next candidate; any other per-pair
// failure is logged and skipped so one bad match cannot halt the pass.
func (d *Dispatcher) matchJob(ctx context.Context, j *job.Job, pol *policy.DistributionPolicy, workers []*worker.Worker) bool {
	now := d.clock.Now()

	eligible := make([]*worker.Worker, 0, len(workers))
	for _, w := range workers {
		if !w.Eligible() {
			continue
		}
		if _, ok := w.ChannelCost(j.Channel); !ok {
			continue
		}
		if w.OfferForJob(j.ID) != nil {
			continue
		}
		if d.cooldown.CoolingDown(j.ID, w.ID, now) {
			continue
		}
		eligible = append(eligible, w)
	}
	if len(eligible) == 0 {
		return false
	}

	ttl := pol.OfferTTL
	if ttl <= 0 {
		ttl = d.defaultOfferTTL
	}

	for _, w := range pol.Mode.Rank(eligible) {
		cost, _ := w.ChannelCost(j.Channel)
		offer := &worker.Offer{
			ID:           id.NewOfferID(),
			JobID:        j.ID,
			WorkerID:     w.ID,
			Channel:      j.Channel,
			CapacityCost: cost,
			OfferedAt:    now,
			ExpiresAt:    now.Add(ttl),
		}

		err := d.store.RecordOffer(ctx, w.ID, offer, pol.EffectiveCap(w))
		switch {
		case err == nil:
			if issueErr := d.finishIssue(ctx, j, offer); issueErr != nil {
				d.logger.Error("offer issued but job update failed",
					slog.String("job_id", j.ID.String()),
					slog.String("offer_id", offer.ID.String()),
					slog.String("error", issueErr.Error()),
				)
			}
			return true
		case errors.Is(err, router.ErrCapacityExceeded),
			errors.Is(err, router.ErrConcurrencyExceeded),
			errors.Is(err, router.ErrWorkerUnavailable):
			continue
		default:
			d.logger.Warn("record offer failed, skipping worker",
				slog.String("job_id", j.ID.String()),
				slog.String("worker_id", w.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return false
}

// finishIssue transitions the job to offered, schedules expiry, and
// emits the issued hook.
func (d *Dispatcher) finishIssue(ctx context.Context, j *job.Job, offer *worker.Offer) error {
	if j.State == job.StateQueued {
		if err := job.Transition(j, job.StateOffered); err != nil {
			return err
		}
		if err := d.store.UpdateJob(ctx, j); err != nil {
			return err
		}
	}

	d.expiry.Schedule(offer.WorkerID, offer.ID, offer.ExpiresAt)
	d.hooks.EmitOfferIssued(ctx, offer)

	d.logger.Debug("offer issued",
		slog.String("job_id", j.ID.String()),
		slog.String("worker_id", offer.WorkerID.String()),
		slog.String("offer_id", offer.ID.String()),
		slog.Int("capacity_cost", offer.CapacityCost),
	)
	return nil
}

// expiryLoop waits for the nearest scheduled offer deadline and expires
// due offers as the clock reaches them.
func (d *Dispatcher) expiryLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		var timer <-chan time.Time
		if next, ok := d.expiry.Next(); ok {
			timer = d.clock.After(next.Sub(d.clock.Now()))
		}

		select {
		case <-ctx.Done():
			return
		case <-d.expiry.wake:
			// A nearer deadline may have arrived; recompute.
		case <-timer:
			for _, e := range d.expiry.PopDue(d.clock.Now()) {
				if err := d.expireOffer(ctx, e.workerID, e.offerID); err != nil {
					d.logger.Error("offer expiry failed",
						slog.String("worker_id", e.workerID.String()),
						slog.String("offer_id", e.offerID.String()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// sweepLoop periodically reclaims expired offers straight from the
// store. It is the backstop for offers scheduled by other processes or
// lost to a restart.
func (d *Dispatcher) sweepLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.clock.After(d.sweepInterval):
			if err := d.SweepExpired(ctx); err != nil {
				d.logger.Error("expiry sweep failed", slog.String("error", err.Error()))
			}
			d.cooldown.Prune(d.clock.Now())
		}
	}
}

// SweepExpired expires every outstanding offer past its deadline and
// kicks the affected queues. Safe to call concurrently with passes.
func (d *Dispatcher) SweepExpired(ctx context.Context) error {
	offers, err := d.store.ListExpiredOffers(ctx, d.clock.Now())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, o := range offers {
		g.Go(func() error {
			return d.expireOffer(gctx, o.WorkerID, o.ID)
		})
	}
	return g.Wait()
}

// PassAll runs passes over every known queue in parallel. Queue loops
// still serialize per queue, so this composes safely with kicks.
func (d *Dispatcher) PassAll(ctx context.Context) error {
	queues, err := d.store.ListQueues(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		g.Go(func() error {
			return d.Pass(gctx, q.ID)
		})
	}
	return g.Wait()
}
