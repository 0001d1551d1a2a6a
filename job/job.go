package job

import (
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is waiting in its queue for an offer.
	StateQueued State = "queued"
	// StateOffered means at least one worker holds an outstanding offer
	// for the job.
	StateOffered State = "offered"
	// StateAssigned means a worker accepted an offer and is handling the job.
	StateAssigned State = "assigned"
	// StateCompleted means the assigned worker finished the job.
	StateCompleted State = "completed"
	// StateClosed means the completed job was closed and its capacity
	// released.
	StateClosed State = "closed"
	// StateCancelled means the job was explicitly cancelled before
	// completion.
	StateCancelled State = "cancelled"
)

// Job represents a unit of routable work.
type Job struct {
	router.Entity

	ID       id.JobID   `json:"id" msgpack:"id"`
	Channel  string     `json:"channel" msgpack:"channel"`
	QueueID  id.QueueID `json:"queue_id" msgpack:"queue_id"`
	Priority int        `json:"priority" msgpack:"priority"`
	State    State      `json:"state" msgpack:"state"`

	// EnqueuedAt is the FIFO tie-break within a priority band. It is set
	// on submission and preserved across offer expiry and decline.
	EnqueuedAt time.Time `json:"enqueued_at" msgpack:"enqueued_at"`

	// Assignments holds the job's assignment records, newest last.
	// A job has at most one open assignment at a time.
	Assignments []*Assignment `json:"assignments,omitempty" msgpack:"assignments,omitempty"`

	CancelledAt *time.Time `json:"cancelled_at,omitempty" msgpack:"cancelled_at,omitempty"`
}

// Assignment is the durable record that a worker accepted a job.
type Assignment struct {
	ID           id.AssignmentID `json:"id" msgpack:"id"`
	JobID        id.JobID        `json:"job_id" msgpack:"job_id"`
	WorkerID     id.WorkerID     `json:"worker_id" msgpack:"worker_id"`
	CapacityCost int             `json:"capacity_cost" msgpack:"capacity_cost"`
	AssignedAt   time.Time       `json:"assigned_at" msgpack:"assigned_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" msgpack:"completed_at,omitempty"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty" msgpack:"closed_at,omitempty"`
}

// Open reports whether the assignment has not been closed yet.
func (a *Assignment) Open() bool { return a.ClosedAt == nil }

// OpenAssignment returns the job's open assignment, or nil if none.
func (j *Job) OpenAssignment() *Assignment {
	for i := len(j.Assignments) - 1; i >= 0; i-- {
		if j.Assignments[i].Open() {
			return j.Assignments[i]
		}
	}
	return nil
}

// Assignment returns the assignment with the given ID, or nil if absent.
func (j *Job) Assignment(assignmentID id.AssignmentID) *Assignment {
	for _, a := range j.Assignments {
		if a.ID == assignmentID {
			return a
		}
	}
	return nil
}

// Terminal reports whether the job is in a state that accepts no further
// dispatcher activity.
func (j *Job) Terminal() bool {
	return j.State == StateClosed || j.State == StateCancelled
}
