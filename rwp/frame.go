// Package rwp implements the Router Wire Protocol (RWP), a message-based
// protocol for worker and router communication. RWP is transported over
// WebSocket (primary) and HTTP (one-shot RPC). Connected workers receive
// offer lifecycle events as pushed frames and resolve offers with
// request frames.
package rwp

import (
	"encoding/json"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the RWP message envelope. Every message exchanged over the
// protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g., "offer.accept").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Token carries auth credentials (typically only on the auth frame).
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Event names the pushed event for event frames (e.g., "offer.issued").
	Event string `json:"event,omitempty" msgpack:"event,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in a response or error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// ── Well-known methods ──────────────────────────────

const (
	// Auth methods.
	MethodAuth = "auth"

	// Offer methods.
	MethodOfferAccept  = "offer.accept"
	MethodOfferDecline = "offer.decline"

	// Job methods.
	MethodJobSubmit   = "job.submit"
	MethodJobGet      = "job.get"
	MethodJobCancel   = "job.cancel"
	MethodJobComplete = "job.complete"
	MethodJobClose    = "job.close"

	// Worker methods.
	MethodWorkerGet = "worker.get"

	// Admin methods.
	MethodStats = "stats"
)

// ── Well-known events ───────────────────────────────

const (
	EventOfferIssued  = "offer.issued"
	EventOfferExpired = "offer.expired"
	EventOfferRevoked = "offer.revoked"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest     = 400
	ErrCodeUnauthorized   = 401
	ErrCodeForbidden      = 403
	ErrCodeNotFound       = 404
	ErrCodeMethodNotFound = 405
	ErrCodeConflict       = 409
	ErrCodeRaceLost       = 410
	ErrCodeInternal       = 500
)

// ── Request/Response payloads ───────────────────────

// AuthRequest is sent by clients to authenticate. WorkerID binds the
// connection so offer events for that worker are pushed to it.
type AuthRequest struct {
	Token    string `json:"token"`
	Format   string `json:"format,omitempty"` // "json" (default) or "msgpack"
	WorkerID string `json:"worker_id,omitempty"`
}

// AuthResponse is returned after successful authentication.
type AuthResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

// OfferAcceptRequest accepts an outstanding offer.
type OfferAcceptRequest struct {
	WorkerID string `json:"worker_id"`
	OfferID  string `json:"offer_id"`
}

// OfferAcceptResponse identifies the created assignment.
type OfferAcceptResponse struct {
	JobID        string `json:"job_id"`
	WorkerID     string `json:"worker_id"`
	AssignmentID string `json:"assignment_id"`
}

// OfferDeclineRequest declines an outstanding offer.
type OfferDeclineRequest struct {
	WorkerID string `json:"worker_id"`
	OfferID  string `json:"offer_id"`
	Reason   string `json:"reason,omitempty"`
}

// OfferEvent is the payload of pushed offer lifecycle events.
type OfferEvent struct {
	OfferID      string    `json:"offer_id"`
	JobID        string    `json:"job_id"`
	WorkerID     string    `json:"worker_id"`
	Channel      string    `json:"channel"`
	CapacityCost int       `json:"capacity_cost"`
	OfferedAt    time.Time `json:"offered_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// JobSubmitRequest submits a new job.
type JobSubmitRequest struct {
	Channel  string `json:"channel"`
	QueueID  string `json:"queue_id"`
	Priority int    `json:"priority,omitempty"`
}

// JobSubmitResponse confirms job creation.
type JobSubmitResponse struct {
	JobID   string `json:"job_id"`
	QueueID string `json:"queue_id"`
	State   string `json:"state"`
}

// JobGetRequest retrieves a job by ID.
type JobGetRequest struct {
	JobID string `json:"job_id"`
}

// JobCancelRequest cancels a job.
type JobCancelRequest struct {
	JobID string `json:"job_id"`
}

// JobSettleRequest completes or closes a job's assignment.
type JobSettleRequest struct {
	JobID        string `json:"job_id"`
	AssignmentID string `json:"assignment_id"`
}

// WorkerGetRequest retrieves a worker snapshot.
type WorkerGetRequest struct {
	WorkerID string `json:"worker_id"`
}

// NewRequestFrame creates a new request frame.
func NewRequestFrame(id, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        id,
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       GenerateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates a pushed event frame.
func NewEventFrame(event string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameEvent,
		Event:     event,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GenerateFrameID returns a new unique frame ID.
// Uses a simple timestamp approach for performance.
func GenerateFrameID() string {
	return time.Now().UTC().Format("20060102150405.000000000")
}
