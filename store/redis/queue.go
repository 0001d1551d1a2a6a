package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/queue"
)

// UpsertQueue inserts or replaces a queue.
func (s *Store) UpsertQueue(ctx context.Context, q *queue.Queue) error {
	qID := q.ID.String()
	key := queueEntityKey(qID)

	fields := map[string]interface{}{
		"id":         qID,
		"name":       q.Name,
		"policy_id":  q.PolicyID.String(),
		"created_at": q.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	// Preserve the original creation time on re-upsert.
	createdAt, err := s.client.HGet(ctx, key, "created_at").Result()
	if err == nil && createdAt != "" {
		fields["created_at"] = createdAt
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, queueIDsKey, qID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: upsert queue: %w", err)
	}
	return nil
}

// GetQueue retrieves a queue by ID.
func (s *Store) GetQueue(ctx context.Context, queueID id.QueueID) (*queue.Queue, error) {
	vals, err := s.client.HGetAll(ctx, queueEntityKey(queueID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: get queue: %w", err)
	}
	if len(vals) == 0 {
		return nil, router.ErrQueueNotFound
	}
	return mapToQueue(vals)
}

// ListQueues returns all queues.
func (s *Store) ListQueues(ctx context.Context) ([]*queue.Queue, error) {
	ids, err := s.client.SMembers(ctx, queueIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: list queues smembers: %w", err)
	}

	queues := make([]*queue.Queue, 0, len(ids))
	for _, qID := range ids {
		vals, getErr := s.client.HGetAll(ctx, queueEntityKey(qID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		q, mapErr := mapToQueue(vals)
		if mapErr != nil {
			continue
		}
		queues = append(queues, q)
	}
	return queues, nil
}

// DeleteQueue removes a queue by ID.
func (s *Store) DeleteQueue(ctx context.Context, queueID id.QueueID) error {
	qID := queueID.String()
	key := queueEntityKey(qID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("router/redis: delete queue exists: %w", err)
	}
	if exists == 0 {
		return router.ErrQueueNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, queueIDsKey, qID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: delete queue: %w", err)
	}
	return nil
}

func mapToQueue(m map[string]string) (*queue.Queue, error) {
	qID, err := id.ParseQueueID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("router/redis: parse queue id: %w", err)
	}
	policyID, err := id.ParsePolicyID(m["policy_id"])
	if err != nil {
		return nil, fmt.Errorf("router/redis: parse policy id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &queue.Queue{
		Entity: router.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       qID,
		Name:     m["name"],
		PolicyID: policyID,
	}, nil
}
