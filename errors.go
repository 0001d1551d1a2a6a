package router

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("router: no store configured")
	ErrStoreClosed = errors.New("router: store closed")

	// ErrJobAlreadyExists is returned when submitting a job whose ID is
	// already in the store.
	ErrJobAlreadyExists = errors.New("router: job already exists")

	// Not found errors.
	ErrJobNotFound        = errors.New("router: job not found")
	ErrWorkerNotFound     = errors.New("router: worker not found")
	ErrOfferNotFound      = errors.New("router: offer not found")
	ErrAssignmentNotFound = errors.New("router: assignment not found")
	ErrQueueNotFound      = errors.New("router: queue not found")
	ErrPolicyNotFound     = errors.New("router: distribution policy not found")

	// Match errors. These are local to a single match attempt inside a
	// dispatch pass and are never surfaced to API callers.
	ErrCapacityExceeded    = errors.New("router: worker capacity exceeded")
	ErrConcurrencyExceeded = errors.New("router: concurrent offer limit exceeded")

	// State errors.
	ErrInvalidTransition = errors.New("router: invalid state transition")
	ErrWorkerUnavailable = errors.New("router: worker not available for offers")

	// RaceLost means the caller's accept arrived after the offer was
	// already resolved (accepted elsewhere, declined, or expired).
	// Callers should re-fetch the worker's offers and retry if desired.
	ErrRaceLost = errors.New("router: offer already resolved")

	// Validation errors.
	ErrInvalidCapacity    = errors.New("router: worker capacity must be positive")
	ErrInvalidConcurrency = errors.New("router: concurrent offer limit must be at least 1")
	ErrInvalidOfferTTL    = errors.New("router: offer TTL must be positive")
)
