// Package store defines the aggregate persistence interface. Each subsystem
// (job, worker, queue, policy) defines its own store interface. The
// composite Store composes them all. Backends: Postgres, Redis, and Memory.
package store

import (
	"context"

	"github.com/xraph/router/job"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
	"github.com/xraph/router/worker"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, memory) implements all of them.
type Store interface {
	job.Store
	worker.Store
	queue.Store
	policy.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
