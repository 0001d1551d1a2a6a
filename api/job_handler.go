package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
)

func (a *API) submitJob(ctx forge.Context, req *SubmitJobRequest) (*job.Job, error) {
	queueID, err := id.ParseQueueID(req.QueueID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid queue ID: %v", err))
	}

	opts := []job.Option{job.WithPriority(req.Priority)}
	if req.JobID != "" {
		jobID, parseErr := id.ParseJobID(req.JobID)
		if parseErr != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", parseErr))
		}
		opts = append(opts, job.WithJobID(jobID))
	}

	j, err := a.eng.SubmitJob(ctx.Context(), req.Channel, queueID, opts...)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return j, ctx.JSON(http.StatusCreated, j)
}

func (a *API) listJobs(ctx forge.Context, req *ListJobsRequest) ([]*job.Job, error) {
	opts := job.ListOpts{
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}
	if req.QueueID != "" {
		queueID, err := id.ParseQueueID(req.QueueID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid queue ID: %v", err))
		}
		opts.QueueID = queueID
	}

	jobs, err := a.eng.Store().ListJobsByState(ctx.Context(), job.State(req.State), opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, ctx.JSON(http.StatusOK, jobs)
}

func (a *API) getJob(ctx forge.Context, _ *GetJobRequest) (*job.Job, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := a.eng.GetJob(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return j, ctx.JSON(http.StatusOK, j)
}

func (a *API) cancelJob(ctx forge.Context, _ *CancelJobRequest) (*struct{}, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	if err := a.eng.CancelJob(ctx.Context(), jobID); err != nil {
		return nil, mapStoreError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) completeJob(ctx forge.Context, req *SettleJobRequest) (*job.Job, error) {
	return a.settleJob(ctx, req, a.eng.CompleteJob)
}

func (a *API) closeJob(ctx forge.Context, req *SettleJobRequest) (*job.Job, error) {
	return a.settleJob(ctx, req, a.eng.CloseJob)
}

func (a *API) settleJob(ctx forge.Context, req *SettleJobRequest, settle func(c context.Context, jobID id.JobID, assignmentID id.AssignmentID) error) (*job.Job, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}
	assignmentID, err := id.ParseAssignmentID(req.AssignmentID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid assignment ID: %v", err))
	}

	if err := settle(ctx.Context(), jobID, assignmentID); err != nil {
		return nil, mapStoreError(err)
	}

	j, err := a.eng.GetJob(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return j, ctx.JSON(http.StatusOK, j)
}

func (a *API) jobCounts(ctx forge.Context) error {
	c := ctx.Context()

	states := []job.State{
		job.StateQueued,
		job.StateOffered,
		job.StateAssigned,
		job.StateCompleted,
		job.StateClosed,
		job.StateCancelled,
	}

	resp := JobCountsResponse{}
	for _, state := range states {
		count, err := a.eng.Store().CountJobs(c, job.CountOpts{State: state})
		if err != nil {
			return fmt.Errorf("count jobs (%s): %w", state, err)
		}
		switch state {
		case job.StateQueued:
			resp.Queued = count
		case job.StateOffered:
			resp.Offered = count
		case job.StateAssigned:
			resp.Assigned = count
		case job.StateCompleted:
			resp.Completed = count
		case job.StateClosed:
			resp.Closed = count
		case job.StateCancelled:
			resp.Cancelled = count
		}
	}

	return ctx.JSON(http.StatusOK, resp)
}

// mapStoreError converts router sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if isBadRequest(err) {
		return forge.BadRequest(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, router.ErrJobNotFound) ||
		errors.Is(err, router.ErrWorkerNotFound) ||
		errors.Is(err, router.ErrOfferNotFound) ||
		errors.Is(err, router.ErrAssignmentNotFound) ||
		errors.Is(err, router.ErrQueueNotFound) ||
		errors.Is(err, router.ErrPolicyNotFound)
}

func isBadRequest(err error) bool {
	return errors.Is(err, router.ErrInvalidTransition) ||
		errors.Is(err, router.ErrRaceLost) ||
		errors.Is(err, router.ErrInvalidCapacity) ||
		errors.Is(err, router.ErrInvalidConcurrency) ||
		errors.Is(err, router.ErrInvalidOfferTTL)
}
