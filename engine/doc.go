// Package engine wires all router subsystems together. It builds the
// extension registry, queue rate limiter, dispatcher, and janitor on top
// of a Router and exposes the management API: upserts for policies,
// queues, workers, and jobs; offer accept/decline; job complete, close,
// and cancel; and snapshot reads.
//
// This package exists to break the import cycle: the root router package
// defines Entity and the sentinel errors (imported by job, worker, etc.)
// and so cannot import those packages back. The engine package sits above
// all subsystem packages and below the application layer.
package engine
