package observability_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/router/ext"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/observability"
	"github.com/xraph/router/worker"
)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtensionWithFactory(gu.NewMetricsCollector("test"))
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:      id.NewJobID(),
		Channel: "voice",
		QueueID: id.NewQueueID(),
		State:   job.StateQueued,
	}
}

func newTestOffer() *worker.Offer {
	return &worker.Offer{
		ID:           id.NewOfferID(),
		JobID:        id.NewJobID(),
		WorkerID:     id.NewWorkerID(),
		Channel:      "voice",
		CapacityCost: 1,
		ExpiresAt:    time.Now().Add(time.Minute),
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_OfferIssued(t *testing.T) {
	e := newTestExtension()
	if err := e.OnOfferIssued(context.Background(), newTestOffer()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.OfferIssued.Value() != 1 {
		t.Errorf("OfferIssued: want 1, got %v", e.OfferIssued.Value())
	}
}

func TestMetricsExtension_OfferAccepted(t *testing.T) {
	e := newTestExtension()
	if err := e.OnOfferAccepted(context.Background(), newTestOffer(), id.NewAssignmentID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.OfferAccepted.Value() != 1 {
		t.Errorf("OfferAccepted: want 1, got %v", e.OfferAccepted.Value())
	}
}

func TestMetricsExtension_OfferDeclined(t *testing.T) {
	e := newTestExtension()
	if err := e.OnOfferDeclined(context.Background(), newTestOffer(), "busy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.OfferDeclined.Value() != 1 {
		t.Errorf("OfferDeclined: want 1, got %v", e.OfferDeclined.Value())
	}
}

func TestMetricsExtension_JobLifecycle(t *testing.T) {
	e := newTestExtension()
	ctx := context.Background()
	j := newTestJob()
	a := &job.Assignment{ID: id.NewAssignmentID(), JobID: j.ID, WorkerID: id.NewWorkerID()}

	if err := e.OnJobQueued(ctx, j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobAssigned(ctx, j, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobCompleted(ctx, j, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobClosed(ctx, j, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobCancelled(ctx, j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range []struct {
		name  string
		value float64
	}{
		{"JobQueued", e.JobQueued.Value()},
		{"JobAssigned", e.JobAssigned.Value()},
		{"JobCompleted", e.JobCompleted.Value()},
		{"JobClosed", e.JobClosed.Value()},
		{"JobCancelled", e.JobCancelled.Value()},
	} {
		if c.value != 1 {
			t.Errorf("%s: want 1, got %v", c.name, c.value)
		}
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e := newTestExtension()
	logger := slog.Default()

	reg := ext.NewRegistry(logger)
	reg.Register(e)

	ctx := context.Background()
	j := newTestJob()
	o := newTestOffer()
	w := &worker.Worker{ID: id.NewWorkerID(), State: worker.StateActive, Capacity: 1}

	reg.EmitOfferIssued(ctx, o)
	reg.EmitOfferAccepted(ctx, o, id.NewAssignmentID())
	reg.EmitOfferDeclined(ctx, o, "busy")
	reg.EmitOfferExpired(ctx, o)
	reg.EmitOfferRevoked(ctx, o)
	reg.EmitJobQueued(ctx, j)
	reg.EmitJobCancelled(ctx, j)
	reg.EmitWorkerRegistered(ctx, w)
	reg.EmitWorkerDeregistered(ctx, w.ID)

	checks := []struct {
		name  string
		value float64
	}{
		{"OfferIssued", e.OfferIssued.Value()},
		{"OfferAccepted", e.OfferAccepted.Value()},
		{"OfferDeclined", e.OfferDeclined.Value()},
		{"OfferExpired", e.OfferExpired.Value()},
		{"OfferRevoked", e.OfferRevoked.Value()},
		{"JobQueued", e.JobQueued.Value()},
		{"JobCancelled", e.JobCancelled.Value()},
		{"WorkerRegistered", e.WorkerRegistered.Value()},
		{"WorkerDeregistered", e.WorkerDeregistered.Value()},
	}

	for _, c := range checks {
		if c.value != 1 {
			t.Errorf("%s: want 1, got %v", c.name, c.value)
		}
	}
}
