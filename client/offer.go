package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/router/rwp"
)

// Assignment identifies the assignment created by accepting an offer.
type Assignment struct {
	JobID        string `json:"job_id"`
	WorkerID     string `json:"worker_id"`
	AssignmentID string `json:"assignment_id"`
}

// AcceptOffer accepts an outstanding offer and returns the created
// assignment. If the offer was already resolved the server responds
// with a race-lost error.
func (c *Client) AcceptOffer(ctx context.Context, workerID, offerID string) (*Assignment, error) {
	resp, err := c.request(ctx, rwp.MethodOfferAccept, rwp.OfferAcceptRequest{
		WorkerID: workerID,
		OfferID:  offerID,
	})
	if err != nil {
		return nil, err
	}

	var a Assignment
	if err := json.Unmarshal(resp.Data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &a, nil
}

// DeclineOffer declines an outstanding offer. Declining an offer that
// no longer exists is a no-op.
func (c *Client) DeclineOffer(ctx context.Context, workerID, offerID, reason string) error {
	_, err := c.request(ctx, rwp.MethodOfferDecline, rwp.OfferDeclineRequest{
		WorkerID: workerID,
		OfferID:  offerID,
		Reason:   reason,
	})
	return err
}

// GetWorker retrieves a worker snapshot, including its outstanding
// offers and active assignments.
func (c *Client) GetWorker(ctx context.Context, workerID string) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodWorkerGet, rwp.WorkerGetRequest{
		WorkerID: workerID,
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
