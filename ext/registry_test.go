package ext

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
	"github.com/xraph/router/worker"
)

// recorder implements a subset of hooks and records calls.
type recorder struct {
	issued    int
	accepted  int
	queued    int
	shutdowns int
	fail      bool
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnOfferIssued(_ context.Context, _ *worker.Offer) error {
	r.issued++
	if r.fail {
		return errors.New("hook failure")
	}
	return nil
}

func (r *recorder) OnOfferAccepted(_ context.Context, _ *worker.Offer, _ id.AssignmentID) error {
	r.accepted++
	return nil
}

func (r *recorder) OnJobQueued(_ context.Context, _ *job.Job) error {
	r.queued++
	return nil
}

func (r *recorder) OnShutdown(_ context.Context) error {
	r.shutdowns++
	return nil
}

func TestRegistryDispatchesToImplementedHooks(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	reg := NewRegistry(nil)
	reg.Register(rec)

	ctx := context.Background()
	o := &worker.Offer{ID: id.NewOfferID()}

	reg.EmitOfferIssued(ctx, o)
	reg.EmitOfferAccepted(ctx, o, id.NewAssignmentID())
	reg.EmitJobQueued(ctx, &job.Job{ID: id.NewJobID()})
	reg.EmitShutdown(ctx)

	// Hooks the recorder does not implement must be safe no-ops.
	reg.EmitOfferExpired(ctx, o)
	reg.EmitOfferDeclined(ctx, o, "busy")
	reg.EmitWorkerDeregistered(ctx, id.NewWorkerID())

	if rec.issued != 1 || rec.accepted != 1 || rec.queued != 1 || rec.shutdowns != 1 {
		t.Fatalf("unexpected call counts: %+v", rec)
	}
}

func TestRegistryHookErrorDoesNotPropagate(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: true}
	reg := NewRegistry(nil)
	reg.Register(rec)

	// Must not panic or halt on hook error.
	reg.EmitOfferIssued(context.Background(), &worker.Offer{ID: id.NewOfferID()})

	if rec.issued != 1 {
		t.Fatalf("hook was not invoked: %+v", rec)
	}
}

func TestRegistryOrder(t *testing.T) {
	t.Parallel()

	var order []string

	first := &namedHook{name: "first", order: &order}
	second := &namedHook{name: "second", order: &order}

	reg := NewRegistry(nil)
	reg.Register(first)
	reg.Register(second)

	reg.EmitJobQueued(context.Background(), &job.Job{ID: id.NewJobID()})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("emit order = %v", order)
	}
	if len(reg.Extensions()) != 2 {
		t.Fatalf("Extensions() = %d, want 2", len(reg.Extensions()))
	}
}

type namedHook struct {
	name  string
	order *[]string
}

func (n *namedHook) Name() string { return n.name }

func (n *namedHook) OnJobQueued(_ context.Context, _ *job.Job) error {
	*n.order = append(*n.order, n.name)
	return nil
}
