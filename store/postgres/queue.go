package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/queue"
)

// UpsertQueue inserts or replaces a queue.
func (s *Store) UpsertQueue(ctx context.Context, q *queue.Queue) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO router_queues (id, name, policy_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			policy_id = EXCLUDED.policy_id,
			updated_at = NOW()`,
		q.ID.String(), q.Name, q.PolicyID.String(), q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: upsert queue: %w", err)
	}
	return nil
}

// GetQueue retrieves a queue by ID.
func (s *Store) GetQueue(ctx context.Context, queueID id.QueueID) (*queue.Queue, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, policy_id, created_at, updated_at
		FROM router_queues
		WHERE id = $1`,
		queueID.String(),
	)

	q, err := scanQueue(row)
	if err != nil {
		if isNoRows(err) {
			return nil, router.ErrQueueNotFound
		}
		return nil, fmt.Errorf("router/postgres: get queue: %w", err)
	}
	return q, nil
}

// ListQueues returns all queues.
func (s *Store) ListQueues(ctx context.Context) ([]*queue.Queue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, policy_id, created_at, updated_at
		FROM router_queues
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list queues: %w", err)
	}
	defer rows.Close()

	var queues []*queue.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("router/postgres: scan queue row: %w", err)
		}
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("router/postgres: iterate queue rows: %w", err)
	}
	return queues, nil
}

// DeleteQueue removes a queue by ID.
func (s *Store) DeleteQueue(ctx context.Context, queueID id.QueueID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM router_queues WHERE id = $1`, queueID.String())
	if err != nil {
		return fmt.Errorf("router/postgres: delete queue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return router.ErrQueueNotFound
	}
	return nil
}

// scanQueue scans a single queue row.
func scanQueue(row pgx.Row) (*queue.Queue, error) {
	var (
		q         queue.Queue
		idStr     string
		policyStr string
	)
	err := row.Scan(&idStr, &q.Name, &policyStr, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseQueueID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("router/postgres: parse queue id %q: %w", idStr, parseErr)
	}
	q.ID = parsedID

	parsedPolicy, policyErr := id.ParsePolicyID(policyStr)
	if policyErr != nil {
		return nil, fmt.Errorf("router/postgres: parse policy id %q: %w", policyStr, policyErr)
	}
	q.PolicyID = parsedPolicy

	return &q, nil
}
