package dispatcher

import (
	"testing"
	"time"

	"github.com/xraph/router/backoff"
	"github.com/xraph/router/id"
)

func TestCooldownGrowsWithDeclines(t *testing.T) {
	t.Parallel()

	c := newCooldownTracker(backoff.NewExponential(time.Second, time.Minute))
	jobID := id.NewJobID()
	workerID := id.NewWorkerID()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if c.CoolingDown(jobID, workerID, now) {
		t.Fatal("fresh pair should not be cooling down")
	}

	c.NoteDecline(jobID, workerID, now)
	if !c.CoolingDown(jobID, workerID, now) {
		t.Fatal("pair should cool down after a decline")
	}
	if c.CoolingDown(jobID, workerID, now.Add(2*time.Second)) {
		t.Fatal("first cool-down should lapse after the base delay")
	}

	// The count persists past the lapse, so the next decline cools
	// down for longer.
	c.NoteDecline(jobID, workerID, now.Add(2*time.Second))
	if !c.CoolingDown(jobID, workerID, now.Add(3500*time.Millisecond)) {
		t.Fatal("second cool-down should outlast the base delay")
	}
}

func TestCooldownIsPerPair(t *testing.T) {
	t.Parallel()

	c := newCooldownTracker(backoff.NewConstant(time.Minute))
	jobID := id.NewJobID()
	w1 := id.NewWorkerID()
	w2 := id.NewWorkerID()
	now := time.Now().UTC()

	c.NoteDecline(jobID, w1, now)
	if !c.CoolingDown(jobID, w1, now) {
		t.Fatal("declining worker should cool down")
	}
	if c.CoolingDown(jobID, w2, now) {
		t.Fatal("other worker should be unaffected")
	}
}

func TestCooldownForget(t *testing.T) {
	t.Parallel()

	c := newCooldownTracker(backoff.NewConstant(time.Minute))
	jobID := id.NewJobID()
	other := id.NewJobID()
	workerID := id.NewWorkerID()
	now := time.Now().UTC()

	c.NoteDecline(jobID, workerID, now)
	c.NoteDecline(other, workerID, now)

	c.Forget(jobID)
	if c.CoolingDown(jobID, workerID, now) {
		t.Fatal("forgotten job should not cool down")
	}
	if !c.CoolingDown(other, workerID, now) {
		t.Fatal("other job's cool-down should survive")
	}
}

func TestCooldownPrune(t *testing.T) {
	t.Parallel()

	c := newCooldownTracker(backoff.NewConstant(time.Second))
	jobID := id.NewJobID()
	workerID := id.NewWorkerID()
	now := time.Now().UTC()

	c.NoteDecline(jobID, workerID, now)

	// Recently lapsed entries survive pruning so the decline count is
	// not reset mid-loop.
	c.Prune(now.Add(2 * time.Second))
	c.mu.Lock()
	kept := len(c.entries)
	c.mu.Unlock()
	if kept != 1 {
		t.Fatalf("entries after early prune = %d, want 1", kept)
	}

	c.Prune(now.Add(2 * time.Hour))
	c.mu.Lock()
	kept = len(c.entries)
	c.mu.Unlock()
	if kept != 0 {
		t.Fatalf("entries after late prune = %d, want 0", kept)
	}
}
