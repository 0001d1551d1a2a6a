package job

import (
	"context"
	"time"

	"github.com/xraph/router/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// QueueID filters by queue. Nil means all queues.
	QueueID id.QueueID
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// QueueID filters by queue. Nil means all queues.
	QueueID id.QueueID
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new job in queued state.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListQueuedJobs returns the queued jobs for a queue ordered by
	// priority (descending) then EnqueuedAt (ascending).
	ListQueuedJobs(ctx context.Context, queueID id.QueueID) ([]*Job, error)

	// ListJobsByState returns jobs matching the given state.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// PurgeFinishedJobs removes closed and cancelled jobs whose last
	// update is before the given time. Returns the number purged.
	PurgeFinishedJobs(ctx context.Context, before time.Time) (int64, error)
}
