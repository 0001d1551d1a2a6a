package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
)

func newWorker(capacity int) *Worker {
	return &Worker{
		Entity:              router.NewEntity(),
		ID:                  id.NewWorkerID(),
		State:               StateActive,
		Capacity:            capacity,
		Channels:            []ChannelConfig{{Channel: "voice", CapacityCost: 1}, {Channel: "chat", CapacityCost: 2}},
		MaxConcurrentOffers: 3,
		AvailableForOffers:  true,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Worker)
		wantErr error
	}{
		{"valid", func(*Worker) {}, nil},
		{"zero capacity", func(w *Worker) { w.Capacity = 0 }, router.ErrInvalidCapacity},
		{"negative capacity", func(w *Worker) { w.Capacity = -1 }, router.ErrInvalidCapacity},
		{"zero offer cap", func(w *Worker) { w.MaxConcurrentOffers = 0 }, router.ErrInvalidConcurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := newWorker(10)
			tt.mutate(w)
			if err := w.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChannelCost(t *testing.T) {
	t.Parallel()

	w := newWorker(10)

	cost, ok := w.ChannelCost("chat")
	if !ok || cost != 2 {
		t.Fatalf("ChannelCost(chat) = %d, %v", cost, ok)
	}
	if _, ok := w.ChannelCost("email"); ok {
		t.Fatal("unhandled channel should not resolve")
	}
}

func TestCapacityAccounting(t *testing.T) {
	t.Parallel()

	w := newWorker(10)
	now := time.Now().UTC()

	w.Offers = append(w.Offers, &Offer{
		ID: id.NewOfferID(), JobID: id.NewJobID(), WorkerID: w.ID,
		CapacityCost: 2, OfferedAt: now, ExpiresAt: now.Add(time.Minute),
	})
	w.Assignments = append(w.Assignments, &ActiveAssignment{
		AssignmentID: id.NewAssignmentID(), JobID: id.NewJobID(),
		CapacityCost: 3, AssignedAt: now,
	})

	if got := w.CapacityInUse(); got != 5 {
		t.Fatalf("CapacityInUse = %d, want 5", got)
	}
	if got := w.RemainingCapacity(); got != 5 {
		t.Fatalf("RemainingCapacity = %d, want 5", got)
	}
}

func TestOfferLookup(t *testing.T) {
	t.Parallel()

	w := newWorker(10)
	now := time.Now().UTC()
	o := &Offer{
		ID: id.NewOfferID(), JobID: id.NewJobID(), WorkerID: w.ID,
		CapacityCost: 1, OfferedAt: now, ExpiresAt: now.Add(time.Minute),
	}
	w.Offers = []*Offer{o}

	if got := w.Offer(o.ID); got != o {
		t.Fatal("Offer lookup by ID failed")
	}
	if got := w.OfferForJob(o.JobID); got != o {
		t.Fatal("Offer lookup by job failed")
	}
	if w.Offer(id.NewOfferID()) != nil {
		t.Fatal("unknown offer ID should be nil")
	}
}

func TestOfferExpired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	o := &Offer{OfferedAt: now, ExpiresAt: now.Add(time.Minute)}

	if o.Expired(now) {
		t.Fatal("offer should not be expired before its deadline")
	}
	if !o.Expired(now.Add(time.Minute)) {
		t.Fatal("offer should be expired at its deadline")
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()

	w := newWorker(10)
	if !w.Eligible() {
		t.Fatal("active available worker should be eligible")
	}

	w.AvailableForOffers = false
	if w.Eligible() {
		t.Fatal("unavailable worker should not be eligible")
	}

	w.AvailableForOffers = true
	w.State = StateDraining
	if w.Eligible() {
		t.Fatal("draining worker should not be eligible")
	}
}

func TestIdleSince(t *testing.T) {
	t.Parallel()

	w := newWorker(10)
	if !w.IdleSince().Equal(w.CreatedAt) {
		t.Fatal("never-assigned worker should be idle since registration")
	}

	last := time.Now().UTC().Add(-time.Hour)
	w.LastAssignedAt = &last
	if !w.IdleSince().Equal(last) {
		t.Fatal("IdleSince should reflect last assignment")
	}
}
