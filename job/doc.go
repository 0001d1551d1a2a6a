// Package job defines the job model, its lifecycle state machine, and the
// persistence contract for jobs and assignments.
//
// # Job Entity
//
// A [Job] represents a unit of routable work. It embeds [router.Entity] for
// timestamps and carries the channel, queue, and priority the dispatcher
// uses to match it against workers.
//
// # Lifecycle
//
// Transitions are monotonic:
//
//	queued → offered → assigned → completed → closed
//
// with a cancellation branch from queued or offered. Offered jobs drop back
// to queued when their offers expire or are declined; that is the one
// permitted backward edge, mediated by [Regress]. Every other backward
// transition fails with router.ErrInvalidTransition.
package job
