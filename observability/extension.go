package observability

import (
	"context"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/router/ext"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/worker"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.OfferIssued        = (*MetricsExtension)(nil)
	_ ext.OfferAccepted      = (*MetricsExtension)(nil)
	_ ext.OfferDeclined      = (*MetricsExtension)(nil)
	_ ext.OfferExpired       = (*MetricsExtension)(nil)
	_ ext.OfferRevoked       = (*MetricsExtension)(nil)
	_ ext.JobQueued          = (*MetricsExtension)(nil)
	_ ext.JobAssigned        = (*MetricsExtension)(nil)
	_ ext.JobCompleted       = (*MetricsExtension)(nil)
	_ ext.JobClosed          = (*MetricsExtension)(nil)
	_ ext.JobCancelled       = (*MetricsExtension)(nil)
	_ ext.WorkerRegistered   = (*MetricsExtension)(nil)
	_ ext.WorkerDeregistered = (*MetricsExtension)(nil)
)

// MetricsExtension records routing lifecycle metrics via go-utils
// MetricFactory. Register it as a router extension to automatically track
// offer throughput, decline/expiry rates, and job state transitions.
type MetricsExtension struct {
	OfferIssued   gu.Counter
	OfferAccepted gu.Counter
	OfferDeclined gu.Counter
	OfferExpired  gu.Counter
	OfferRevoked  gu.Counter

	JobQueued    gu.Counter
	JobAssigned  gu.Counter
	JobCompleted gu.Counter
	JobClosed    gu.Counter
	JobCancelled gu.Counter

	WorkerRegistered   gu.Counter
	WorkerDeregistered gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("router/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided
// MetricFactory. Use fapp.Metrics() in forge extensions, or
// gu.NewMetricsCollector for testing.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		OfferIssued:   factory.Counter("router.offer.issued"),
		OfferAccepted: factory.Counter("router.offer.accepted"),
		OfferDeclined: factory.Counter("router.offer.declined"),
		OfferExpired:  factory.Counter("router.offer.expired"),
		OfferRevoked:  factory.Counter("router.offer.revoked"),

		JobQueued:    factory.Counter("router.job.queued"),
		JobAssigned:  factory.Counter("router.job.assigned"),
		JobCompleted: factory.Counter("router.job.completed"),
		JobClosed:    factory.Counter("router.job.closed"),
		JobCancelled: factory.Counter("router.job.cancelled"),

		WorkerRegistered:   factory.Counter("router.worker.registered"),
		WorkerDeregistered: factory.Counter("router.worker.deregistered"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Offer lifecycle hooks ───────────────────────────

// OnOfferIssued implements ext.OfferIssued.
func (m *MetricsExtension) OnOfferIssued(_ context.Context, _ *worker.Offer) error {
	m.OfferIssued.Inc()
	return nil
}

// OnOfferAccepted implements ext.OfferAccepted.
func (m *MetricsExtension) OnOfferAccepted(_ context.Context, _ *worker.Offer, _ id.AssignmentID) error {
	m.OfferAccepted.Inc()
	return nil
}

// OnOfferDeclined implements ext.OfferDeclined.
func (m *MetricsExtension) OnOfferDeclined(_ context.Context, _ *worker.Offer, _ string) error {
	m.OfferDeclined.Inc()
	return nil
}

// OnOfferExpired implements ext.OfferExpired.
func (m *MetricsExtension) OnOfferExpired(_ context.Context, _ *worker.Offer) error {
	m.OfferExpired.Inc()
	return nil
}

// OnOfferRevoked implements ext.OfferRevoked.
func (m *MetricsExtension) OnOfferRevoked(_ context.Context, _ *worker.Offer) error {
	m.OfferRevoked.Inc()
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobQueued implements ext.JobQueued.
func (m *MetricsExtension) OnJobQueued(_ context.Context, _ *job.Job) error {
	m.JobQueued.Inc()
	return nil
}

// OnJobAssigned implements ext.JobAssigned.
func (m *MetricsExtension) OnJobAssigned(_ context.Context, _ *job.Job, _ *job.Assignment) error {
	m.JobAssigned.Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, _ *job.Job, _ *job.Assignment) error {
	m.JobCompleted.Inc()
	return nil
}

// OnJobClosed implements ext.JobClosed.
func (m *MetricsExtension) OnJobClosed(_ context.Context, _ *job.Job, _ *job.Assignment) error {
	m.JobClosed.Inc()
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(_ context.Context, _ *job.Job) error {
	m.JobCancelled.Inc()
	return nil
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerRegistered implements ext.WorkerRegistered.
func (m *MetricsExtension) OnWorkerRegistered(_ context.Context, _ *worker.Worker) error {
	m.WorkerRegistered.Inc()
	return nil
}

// OnWorkerDeregistered implements ext.WorkerDeregistered.
func (m *MetricsExtension) OnWorkerDeregistered(_ context.Context, _ id.WorkerID) error {
	m.WorkerDeregistered.Inc()
	return nil
}
