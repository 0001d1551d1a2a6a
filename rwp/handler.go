package rwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/router"
	"github.com/xraph/router/engine"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
)

// Handler dispatches request frames to engine operations.
type Handler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// NewHandler creates a protocol handler backed by the given engine.
func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{eng: eng, logger: logger}
}

// Handle processes a request frame and returns the response frame.
// Errors are returned as error frames, never as Go errors, so the
// connection loop can always write something back.
func (h *Handler) Handle(ctx context.Context, f *Frame, conn *Connection) *Frame {
	var (
		resp any
		err  error
	)

	switch f.Method {
	case MethodOfferAccept:
		resp, err = h.offerAccept(ctx, f)
	case MethodOfferDecline:
		resp, err = h.offerDecline(ctx, f)
	case MethodJobSubmit:
		resp, err = h.jobSubmit(ctx, f)
	case MethodJobGet:
		resp, err = h.jobGet(ctx, f)
	case MethodJobCancel:
		resp, err = h.jobCancel(ctx, f)
	case MethodJobComplete:
		resp, err = h.jobSettle(ctx, f, h.eng.CompleteJob)
	case MethodJobClose:
		resp, err = h.jobSettle(ctx, f, h.eng.CloseJob)
	case MethodWorkerGet:
		resp, err = h.workerGet(ctx, f)
	case MethodStats:
		resp, err = h.eng.Stats(ctx)
	default:
		return NewErrorFrame(f.ID, ErrCodeMethodNotFound, fmt.Sprintf("unknown method %q", f.Method))
	}

	if err != nil {
		h.logger.Debug("rwp: request failed",
			slog.String("method", f.Method),
			slog.String("conn_id", conn.ID),
			slog.String("error", err.Error()))
		return NewErrorFrame(f.ID, errorCode(err), err.Error())
	}
	return mustResponseFrame(f.ID, resp)
}

// ── Method handlers ─────────────────────────────────

func (h *Handler) offerAccept(ctx context.Context, f *Frame) (any, error) {
	var req OfferAcceptRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return nil, badRequest(err)
	}
	workerID, err := id.ParseWorkerID(req.WorkerID)
	if err != nil {
		return nil, badRequest(err)
	}
	offerID, err := id.ParseOfferID(req.OfferID)
	if err != nil {
		return nil, badRequest(err)
	}
	result, err := h.eng.AcceptJobOffer(ctx, workerID, offerID)
	if err != nil {
		return nil, err
	}
	return OfferAcceptResponse{
		JobID:        result.JobID.String(),
		WorkerID:     result.WorkerID.String(),
		AssignmentID: result.AssignmentID.String(),
	}, nil
}

func (h *Handler) offerDecline(ctx context.Context, f *Frame) (any, error) {
	var req OfferDeclineRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return nil, badRequest(err)
	}
	workerID, err := id.ParseWorkerID(req.WorkerID)
	if err != nil {
		return nil, badRequest(err)
	}
	offerID, err := id.ParseOfferID(req.OfferID)
	if err != nil {
		return nil, badRequest(err)
	}
	if err := h.eng.DeclineJobOffer(ctx, workerID, offerID, req.Reason); err != nil {
		return nil, err
	}
	return map[string]bool{"declined": true}, nil
}

func (h *Handler) jobSubmit(ctx context.Context, f *Frame) (any, error) {
	var req JobSubmitRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return nil, badRequest(err)
	}
	queueID, err := id.ParseQueueID(req.QueueID)
	if err != nil {
		return nil, badRequest(err)
	}
	j, err := h.eng.SubmitJob(ctx, req.Channel, queueID, job.WithPriority(req.Priority))
	if err != nil {
		return nil, err
	}
	return JobSubmitResponse{
		JobID:   j.ID.String(),
		QueueID: j.QueueID.String(),
		State:   string(j.State),
	}, nil
}

func (h *Handler) jobGet(ctx context.Context, f *Frame) (any, error) {
	var req JobGetRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return nil, badRequest(err)
	}
	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return nil, badRequest(err)
	}
	return h.eng.GetJob(ctx, jobID)
}

func (h *Handler) jobCancel(ctx context.Context, f *Frame) (any, error) {
	var req JobCancelRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return nil, badRequest(err)
	}
	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return nil, badRequest(err)
	}
	if err := h.eng.CancelJob(ctx, jobID); err != nil {
		return nil, err
	}
	return map[string]bool{"cancelled": true}, nil
}

func (h *Handler) jobSettle(ctx context.Context, f *Frame, settle func(context.Context, id.JobID, id.AssignmentID) error) (any, error) {
	var req JobSettleRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return nil, badRequest(err)
	}
	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return nil, badRequest(err)
	}
	assignmentID, err := id.ParseAssignmentID(req.AssignmentID)
	if err != nil {
		return nil, badRequest(err)
	}
	if err := settle(ctx, jobID, assignmentID); err != nil {
		return nil, err
	}
	return h.eng.GetJob(ctx, jobID)
}

func (h *Handler) workerGet(ctx context.Context, f *Frame) (any, error) {
	var req WorkerGetRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return nil, badRequest(err)
	}
	workerID, err := id.ParseWorkerID(req.WorkerID)
	if err != nil {
		return nil, badRequest(err)
	}
	return h.eng.GetWorker(ctx, workerID)
}

// ── Helpers ─────────────────────────────────────────

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return badRequestError{err: err} }

// errorCode maps engine errors onto protocol error codes.
func errorCode(err error) int {
	var bre badRequestError
	switch {
	case errors.As(err, &bre):
		return ErrCodeBadRequest
	case errors.Is(err, router.ErrJobNotFound),
		errors.Is(err, router.ErrWorkerNotFound),
		errors.Is(err, router.ErrOfferNotFound),
		errors.Is(err, router.ErrAssignmentNotFound),
		errors.Is(err, router.ErrQueueNotFound),
		errors.Is(err, router.ErrPolicyNotFound):
		return ErrCodeNotFound
	case errors.Is(err, router.ErrRaceLost):
		return ErrCodeRaceLost
	case errors.Is(err, router.ErrInvalidTransition),
		errors.Is(err, router.ErrJobAlreadyExists):
		return ErrCodeConflict
	case errors.Is(err, router.ErrInvalidCapacity),
		errors.Is(err, router.ErrInvalidConcurrency),
		errors.Is(err, router.ErrInvalidOfferTTL):
		return ErrCodeBadRequest
	case errors.Is(err, ErrUnauthorized):
		return ErrCodeUnauthorized
	default:
		return ErrCodeInternal
	}
}

func mustResponseFrame(correlID string, data any) *Frame {
	f, err := NewResponseFrame(correlID, data)
	if err != nil {
		return NewErrorFrame(correlID, ErrCodeInternal, "failed to encode response")
	}
	return f
}
