package job

import "github.com/xraph/router/id"

// Options configures a job submission.
type Options struct {
	// Priority determines offer ordering. Higher values are offered first.
	Priority int

	// JobID forces a specific job ID. Used for re-submission; a nil ID
	// means a fresh ID is generated.
	JobID id.JobID
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{Priority: 0}
}

// Option is a functional option for configuring a job submission.
type Option func(*Options)

// WithPriority sets the job priority. Higher values are offered first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithJobID forces the job ID, replacing an existing job on re-submission.
func WithJobID(jobID id.JobID) Option {
	return func(o *Options) {
		o.JobID = jobID
	}
}
