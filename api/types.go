package api

// SubmitJobRequest is the body for POST /v1/jobs.
type SubmitJobRequest struct {
	Channel  string `json:"channel"`
	QueueID  string `json:"queue_id"`
	Priority int    `json:"priority,omitempty"`
	// JobID optionally pins the job's ID; useful for idempotent retries.
	JobID string `json:"job_id,omitempty"`
}

// ListJobsRequest filters the job list.
type ListJobsRequest struct {
	State   string `json:"state" query:"state"`
	QueueID string `json:"queue_id" query:"queue_id"`
	Limit   int    `json:"limit" query:"limit"`
	Offset  int    `json:"offset" query:"offset"`
}

// GetJobRequest is the (empty) body for GET /v1/jobs/:jobId.
type GetJobRequest struct{}

// CancelJobRequest is the (empty) body for POST /v1/jobs/:jobId/cancel.
type CancelJobRequest struct{}

// SettleJobRequest names the assignment to complete or close.
type SettleJobRequest struct {
	AssignmentID string `json:"assignment_id"`
}

// DeclineOfferRequest optionally carries the decline reason.
type DeclineOfferRequest struct {
	Reason string `json:"reason,omitempty"`
}

// JobCountsResponse groups job counts by state.
type JobCountsResponse struct {
	Queued    int64 `json:"queued"`
	Offered   int64 `json:"offered"`
	Assigned  int64 `json:"assigned"`
	Completed int64 `json:"completed"`
	Closed    int64 `json:"closed"`
	Cancelled int64 `json:"cancelled"`
}

const maxListLimit = 500

func defaultLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
