package dispatcher

import (
	"sync"
	"time"

	"github.com/xraph/router/backoff"
	"github.com/xraph/router/id"
)

// cooldownTracker keeps per-(job, worker) decline cool-downs so a worker
// that just declined a job is not immediately re-offered the same job.
// The delay grows with the pair's decline count per the backoff strategy.
type cooldownTracker struct {
	mu       sync.Mutex
	strategy backoff.Strategy
	entries  map[cooldownKey]*cooldownEntry
}

type cooldownKey struct {
	jobID    id.JobID
	workerID id.WorkerID
}

type cooldownEntry struct {
	declines int
	until    time.Time
}

func newCooldownTracker(strategy backoff.Strategy) *cooldownTracker {
	return &cooldownTracker{
		strategy: strategy,
		entries:  make(map[cooldownKey]*cooldownEntry),
	}
}

// NoteDecline records a decline and starts the pair's next cool-down.
func (c *cooldownTracker) NoteDecline(jobID id.JobID, workerID id.WorkerID, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cooldownKey{jobID: jobID, workerID: workerID}
	e := c.entries[key]
	if e == nil {
		e = &cooldownEntry{}
		c.entries[key] = e
	}
	e.declines++
	e.until = now.Add(c.strategy.Delay(e.declines))
}

// CoolingDown reports whether the pair is still inside its cool-down.
func (c *cooldownTracker) CoolingDown(jobID id.JobID, workerID id.WorkerID, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cooldownKey{jobID: jobID, workerID: workerID}]
	return ok && now.Before(e.until)
}

// Forget drops all cool-down state for a job. Called when the job leaves
// the dispatchable states.
func (c *cooldownTracker) Forget(jobID id.JobID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.jobID == jobID {
			delete(c.entries, key)
		}
	}
}

// cooldownRetention is how long a lapsed entry is kept so the decline
// count keeps growing across a decline loop instead of resetting.
const cooldownRetention = time.Hour

// Prune drops entries whose cool-down lapsed long ago. Called from the
// periodic sweep to bound memory.
func (c *cooldownTracker) Prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.Sub(e.until) > cooldownRetention {
			delete(c.entries, key)
		}
	}
}
