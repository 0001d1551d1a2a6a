// Package dispatcher implements the offer state machine at the heart of
// the router: it matches queued jobs to eligible workers under each
// queue's distribution policy, reserves worker capacity through
// time-bounded offers, and resolves offers on accept, decline, expiry,
// and revocation.
//
// Dispatch is event-driven. Submitting a job, resolving an offer, or
// freeing worker capacity kicks the job's queue; each kick runs a pass
// that matches (job, worker) pairs until no further match is possible.
// Passes over distinct queues run in parallel; passes over the same
// queue are serialized.
//
// Offer expiry is tracked in-process with a min-heap ordered by deadline
// and driven by an injectable clock, backed by a periodic store sweep
// that also reclaims offers recorded by other processes.
package dispatcher
