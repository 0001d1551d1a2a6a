package job

import (
	"fmt"
	"time"

	"github.com/xraph/router"
)

// rank orders the forward lifecycle states. Cancellation is handled
// separately because it is a branch, not a step on the forward path.
var rank = map[State]int{
	StateQueued:    0,
	StateOffered:   1,
	StateAssigned:  2,
	StateCompleted: 3,
	StateClosed:    4,
}

// Transition advances the job to the given forward state, stamping
// UpdatedAt. It fails with router.ErrInvalidTransition if the move is
// backward, skips a step, or the job is terminal.
func Transition(j *Job, to State) error {
	if j.Terminal() {
		return fmt.Errorf("%w: job %s is %s", router.ErrInvalidTransition, j.ID, j.State)
	}

	from, ok := rank[j.State]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", router.ErrInvalidTransition, j.State)
	}
	target, ok := rank[to]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", router.ErrInvalidTransition, to)
	}

	if target != from+1 {
		return fmt.Errorf("%w: %s → %s", router.ErrInvalidTransition, j.State, to)
	}

	j.State = to
	j.Touch()
	return nil
}

// Regress moves an offered job back to queued. This is the single
// permitted backward edge, taken when all of a job's offers have been
// declined or expired.
func Regress(j *Job) error {
	if j.State != StateOffered {
		return fmt.Errorf("%w: %s → %s", router.ErrInvalidTransition, j.State, StateQueued)
	}
	j.State = StateQueued
	j.Touch()
	return nil
}

// Cancel marks the job cancelled. Only queued and offered jobs may be
// cancelled; later states fail with router.ErrInvalidTransition.
func Cancel(j *Job, at time.Time) error {
	if j.State != StateQueued && j.State != StateOffered {
		return fmt.Errorf("%w: cannot cancel %s job", router.ErrInvalidTransition, j.State)
	}
	j.State = StateCancelled
	t := at.UTC()
	j.CancelledAt = &t
	j.Touch()
	return nil
}
