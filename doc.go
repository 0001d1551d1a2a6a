// Package router provides a job offer coordination engine for Go. It matches
// queued jobs to registered workers under capacity and concurrency limits,
// issues time-bounded offers, and tracks the resulting assignments through
// their full lifecycle.
//
// Router is designed as a library, not a service. Import it, configure a
// store, register queues, distribution policies, and workers, and submit
// jobs. The dispatcher reacts to every state change (job submitted, offer
// resolved, capacity freed) and runs a matching pass to a fixed point.
//
// # Quick Start
//
//	r, err := router.New(router.WithStore(memory.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.Build(r)
//
// # Architecture
//
// Router follows a composable store pattern where each subsystem (job,
// worker, queue, policy) defines its own store interface. A single backend
// implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package router
