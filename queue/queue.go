package queue

import (
	"context"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
)

// Queue is an ordered holding area for jobs awaiting offers.
type Queue struct {
	router.Entity

	ID   id.QueueID `json:"id" msgpack:"id"`
	Name string     `json:"name,omitempty" msgpack:"name,omitempty"`

	// PolicyID links the distribution policy governing offer generation
	// for this queue.
	PolicyID id.PolicyID `json:"policy_id" msgpack:"policy_id"`
}

// Store defines the persistence contract for queues.
type Store interface {
	// UpsertQueue inserts or replaces a queue.
	UpsertQueue(ctx context.Context, q *Queue) error

	// GetQueue retrieves a queue by ID.
	GetQueue(ctx context.Context, queueID id.QueueID) (*Queue, error)

	// ListQueues returns all queues.
	ListQueues(ctx context.Context) ([]*Queue, error)

	// DeleteQueue removes a queue by ID.
	DeleteQueue(ctx context.Context, queueID id.QueueID) error
}
