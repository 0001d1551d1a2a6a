package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/worker"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type offerIssuedEntry struct {
	name string
	hook OfferIssued
}

type offerAcceptedEntry struct {
	name string
	hook OfferAccepted
}

type offerDeclinedEntry struct {
	name string
	hook OfferDeclined
}

type offerExpiredEntry struct {
	name string
	hook OfferExpired
}

type offerRevokedEntry struct {
	name string
	hook OfferRevoked
}

type jobQueuedEntry struct {
	name string
	hook JobQueued
}

type jobAssignedEntry struct {
	name string
	hook JobAssigned
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobClosedEntry struct {
	name string
	hook JobClosed
}

type jobCancelledEntry struct {
	name string
	hook JobCancelled
}

type workerRegisteredEntry struct {
	name string
	hook WorkerRegistered
}

type workerDeregisteredEntry struct {
	name string
	hook WorkerDeregistered
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	offerIssued        []offerIssuedEntry
	offerAccepted      []offerAcceptedEntry
	offerDeclined      []offerDeclinedEntry
	offerExpired       []offerExpiredEntry
	offerRevoked       []offerRevokedEntry
	jobQueued          []jobQueuedEntry
	jobAssigned        []jobAssignedEntry
	jobCompleted       []jobCompletedEntry
	jobClosed          []jobClosedEntry
	jobCancelled       []jobCancelledEntry
	workerRegistered   []workerRegisteredEntry
	workerDeregistered []workerDeregisteredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(OfferIssued); ok {
		r.offerIssued = append(r.offerIssued, offerIssuedEntry{name, h})
	}
	if h, ok := e.(OfferAccepted); ok {
		r.offerAccepted = append(r.offerAccepted, offerAcceptedEntry{name, h})
	}
	if h, ok := e.(OfferDeclined); ok {
		r.offerDeclined = append(r.offerDeclined, offerDeclinedEntry{name, h})
	}
	if h, ok := e.(OfferExpired); ok {
		r.offerExpired = append(r.offerExpired, offerExpiredEntry{name, h})
	}
	if h, ok := e.(OfferRevoked); ok {
		r.offerRevoked = append(r.offerRevoked, offerRevokedEntry{name, h})
	}
	if h, ok := e.(JobQueued); ok {
		r.jobQueued = append(r.jobQueued, jobQueuedEntry{name, h})
	}
	if h, ok := e.(JobAssigned); ok {
		r.jobAssigned = append(r.jobAssigned, jobAssignedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobClosed); ok {
		r.jobClosed = append(r.jobClosed, jobClosedEntry{name, h})
	}
	if h, ok := e.(JobCancelled); ok {
		r.jobCancelled = append(r.jobCancelled, jobCancelledEntry{name, h})
	}
	if h, ok := e.(WorkerRegistered); ok {
		r.workerRegistered = append(r.workerRegistered, workerRegisteredEntry{name, h})
	}
	if h, ok := e.(WorkerDeregistered); ok {
		r.workerDeregistered = append(r.workerDeregistered, workerDeregisteredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Offer event emitters
// ──────────────────────────────────────────────────

// EmitOfferIssued notifies all extensions that implement OfferIssued.
func (r *Registry) EmitOfferIssued(ctx context.Context, o *worker.Offer) {
	for _, e := range r.offerIssued {
		if err := e.hook.OnOfferIssued(ctx, o); err != nil {
			r.logHookError("OnOfferIssued", e.name, err)
		}
	}
}

// EmitOfferAccepted notifies all extensions that implement OfferAccepted.
func (r *Registry) EmitOfferAccepted(ctx context.Context, o *worker.Offer, assignmentID id.AssignmentID) {
	for _, e := range r.offerAccepted {
		if err := e.hook.OnOfferAccepted(ctx, o, assignmentID); err != nil {
			r.logHookError("OnOfferAccepted", e.name, err)
		}
	}
}

// EmitOfferDeclined notifies all extensions that implement OfferDeclined.
func (r *Registry) EmitOfferDeclined(ctx context.Context, o *worker.Offer, reason string) {
	for _, e := range r.offerDeclined {
		if err := e.hook.OnOfferDeclined(ctx, o, reason); err != nil {
			r.logHookError("OnOfferDeclined", e.name, err)
		}
	}
}

// EmitOfferExpired notifies all extensions that implement OfferExpired.
func (r *Registry) EmitOfferExpired(ctx context.Context, o *worker.Offer) {
	for _, e := range r.offerExpired {
		if err := e.hook.OnOfferExpired(ctx, o); err != nil {
			r.logHookError("OnOfferExpired", e.name, err)
		}
	}
}

// EmitOfferRevoked notifies all extensions that implement OfferRevoked.
func (r *Registry) EmitOfferRevoked(ctx context.Context, o *worker.Offer) {
	for _, e := range r.offerRevoked {
		if err := e.hook.OnOfferRevoked(ctx, o); err != nil {
			r.logHookError("OnOfferRevoked", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobQueued notifies all extensions that implement JobQueued.
func (r *Registry) EmitJobQueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobQueued {
		if err := e.hook.OnJobQueued(ctx, j); err != nil {
			r.logHookError("OnJobQueued", e.name, err)
		}
	}
}

// EmitJobAssigned notifies all extensions that implement JobAssigned.
func (r *Registry) EmitJobAssigned(ctx context.Context, j *job.Job, a *job.Assignment) {
	for _, e := range r.jobAssigned {
		if err := e.hook.OnJobAssigned(ctx, j, a); err != nil {
			r.logHookError("OnJobAssigned", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, a *job.Assignment) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, a); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobClosed notifies all extensions that implement JobClosed.
func (r *Registry) EmitJobClosed(ctx context.Context, j *job.Job, a *job.Assignment) {
	for _, e := range r.jobClosed {
		if err := e.hook.OnJobClosed(ctx, j, a); err != nil {
			r.logHookError("OnJobClosed", e.name, err)
		}
	}
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCancelled {
		if err := e.hook.OnJobCancelled(ctx, j); err != nil {
			r.logHookError("OnJobCancelled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Worker and system event emitters
// ──────────────────────────────────────────────────

// EmitWorkerRegistered notifies all extensions that implement WorkerRegistered.
func (r *Registry) EmitWorkerRegistered(ctx context.Context, w *worker.Worker) {
	for _, e := range r.workerRegistered {
		if err := e.hook.OnWorkerRegistered(ctx, w); err != nil {
			r.logHookError("OnWorkerRegistered", e.name, err)
		}
	}
}

// EmitWorkerDeregistered notifies all extensions that implement WorkerDeregistered.
func (r *Registry) EmitWorkerDeregistered(ctx context.Context, workerID id.WorkerID) {
	for _, e := range r.workerDeregistered {
		if err := e.hook.OnWorkerDeregistered(ctx, workerID); err != nil {
			r.logHookError("OnWorkerDeregistered", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Hook errors never propagate; a
// misbehaving extension must not disturb dispatching.
func (r *Registry) logHookError(hook, extension string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extension),
		slog.String("error", err.Error()),
	)
}
