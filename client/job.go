package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/router/rwp"
)

// JobResult contains the result of a submit operation.
type JobResult struct {
	JobID   string `json:"job_id"`
	QueueID string `json:"queue_id"`
	State   string `json:"state"`
}

// SubmitJob submits a job to the remote router.
func (c *Client) SubmitJob(ctx context.Context, channel, queueID string, opts ...SubmitOption) (*JobResult, error) {
	req := rwp.JobSubmitRequest{
		Channel: channel,
		QueueID: queueID,
	}
	for _, opt := range opts {
		opt(&req)
	}

	resp, reqErr := c.request(ctx, rwp.MethodJobSubmit, req)
	if reqErr != nil {
		return nil, reqErr
	}

	var result JobResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, jobID string) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodJobGet, rwp.JobGetRequest{
		JobID: jobID,
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CancelJob cancels a job by ID. Outstanding offers for the job are
// revoked before the cancel returns.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	_, err := c.request(ctx, rwp.MethodJobCancel, rwp.JobCancelRequest{
		JobID: jobID,
	})
	return err
}

// CompleteJob marks an assignment's work as finished. The worker's
// capacity stays reserved until CloseJob.
func (c *Client) CompleteJob(ctx context.Context, jobID, assignmentID string) error {
	_, err := c.request(ctx, rwp.MethodJobComplete, rwp.JobSettleRequest{
		JobID:        jobID,
		AssignmentID: assignmentID,
	})
	return err
}

// CloseJob settles a completed assignment and releases the worker's
// capacity.
func (c *Client) CloseJob(ctx context.Context, jobID, assignmentID string) error {
	_, err := c.request(ctx, rwp.MethodJobClose, rwp.JobSettleRequest{
		JobID:        jobID,
		AssignmentID: assignmentID,
	})
	return err
}

// SubmitOption configures a submit request.
type SubmitOption func(*rwp.JobSubmitRequest)

// WithPriority sets the job priority.
func WithPriority(priority int) SubmitOption {
	return func(r *rwp.JobSubmitRequest) { r.Priority = priority }
}

// Stats retrieves router load statistics from the server.
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodStats, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
