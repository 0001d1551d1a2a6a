package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/worker"
)

// UpsertWorker inserts or replaces a worker's registration. Offers,
// active assignments, and the last-assigned timestamp are preserved when
// the ID already exists.
func (s *Store) UpsertWorker(ctx context.Context, w *worker.Worker) error {
	channels, err := json.Marshal(w.Channels)
	if err != nil {
		return fmt.Errorf("router/postgres: marshal channels: %w", err)
	}
	queueIDs, err := json.Marshal(w.QueueIDs)
	if err != nil {
		return fmt.Errorf("router/postgres: marshal queue ids: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO router_workers (
			id, name, state, capacity, channels, queue_ids,
			max_concurrent_offers, available_for_offers,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			capacity = EXCLUDED.capacity,
			channels = EXCLUDED.channels,
			queue_ids = EXCLUDED.queue_ids,
			max_concurrent_offers = EXCLUDED.max_concurrent_offers,
			available_for_offers = EXCLUDED.available_for_offers,
			updated_at = NOW()`,
		w.ID.String(), w.Name, string(w.State), w.Capacity, channels, queueIDs,
		w.MaxConcurrentOffers, w.AvailableForOffers, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: upsert worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker snapshot by ID, including its outstanding
// offers and active assignments.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, state, capacity, channels, queue_ids,
		       max_concurrent_offers, available_for_offers,
		       last_assigned_at, created_at, updated_at
		FROM router_workers
		WHERE id = $1`,
		workerID.String(),
	)

	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, router.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("router/postgres: get worker: %w", err)
	}

	if err := s.loadWorkerState(ctx, []*worker.Worker{w}); err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkersByQueue returns the workers servicing the given queue.
func (s *Store) ListWorkersByQueue(ctx context.Context, queueID id.QueueID) ([]*worker.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, state, capacity, channels, queue_ids,
		       max_concurrent_offers, available_for_offers,
		       last_assigned_at, created_at, updated_at
		FROM router_workers
		WHERE queue_ids @> to_jsonb($1::text)
		ORDER BY id ASC`,
		queueID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list workers by queue: %w", err)
	}
	defer rows.Close()

	workers, err := collectWorkers(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadWorkerState(ctx, workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, state, capacity, channels, queue_ids,
		       max_concurrent_offers, available_for_offers,
		       last_assigned_at, created_at, updated_at
		FROM router_workers
		ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list workers: %w", err)
	}
	defer rows.Close()

	workers, err := collectWorkers(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadWorkerState(ctx, workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// DeregisterWorker marks the worker inactive without deleting history.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE router_workers SET
			state = 'inactive', available_for_offers = FALSE, updated_at = NOW()
		WHERE id = $1`,
		workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("router/postgres: deregister worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return router.ErrWorkerNotFound
	}
	return nil
}

// RecordOffer atomically reserves capacity for an offer. The worker row
// is locked for the duration of the check-and-insert so concurrent
// reservations against the same worker serialize.
func (s *Store) RecordOffer(ctx context.Context, workerID id.WorkerID, offer *worker.Offer, maxOffers int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("router/postgres: begin record offer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		stateStr  string
		capacity  int
		available bool
	)
	err = tx.QueryRow(ctx, `
		SELECT state, capacity, available_for_offers
		FROM router_workers
		WHERE id = $1
		FOR UPDATE`,
		workerID.String(),
	).Scan(&stateStr, &capacity, &available)
	if err != nil {
		if isNoRows(err) {
			return router.ErrWorkerNotFound
		}
		return fmt.Errorf("router/postgres: lock worker: %w", err)
	}
	if worker.State(stateStr) != worker.StateActive || !available {
		return router.ErrWorkerUnavailable
	}

	var offerCount, offerCost int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(capacity_cost), 0)
		FROM router_offers
		WHERE worker_id = $1`,
		workerID.String(),
	).Scan(&offerCount, &offerCost)
	if err != nil {
		return fmt.Errorf("router/postgres: sum offers: %w", err)
	}

	var assignmentCost int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(capacity_cost), 0)
		FROM router_worker_assignments
		WHERE worker_id = $1`,
		workerID.String(),
	).Scan(&assignmentCost)
	if err != nil {
		return fmt.Errorf("router/postgres: sum assignments: %w", err)
	}

	if maxOffers > 0 && offerCount >= maxOffers {
		return router.ErrConcurrencyExceeded
	}
	if offerCost+assignmentCost+offer.CapacityCost > capacity {
		return router.ErrCapacityExceeded
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO router_offers (
			id, job_id, worker_id, channel, capacity_cost, offered_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		offer.ID.String(), offer.JobID.String(), workerID.String(),
		offer.Channel, offer.CapacityCost, offer.OfferedAt, offer.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: insert offer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("router/postgres: commit record offer: %w", err)
	}
	return nil
}

// RemoveOffer removes an outstanding offer. Idempotent: returns false
// when the offer was already gone.
func (s *Store) RemoveOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM router_offers WHERE id = $1 AND worker_id = $2`,
		offerID.String(), workerID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("router/postgres: remove offer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ConvertOffer atomically replaces an outstanding offer with an active
// assignment carrying the same capacity cost. Returns ErrRaceLost when
// the offer was already resolved.
func (s *Store) ConvertOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID, assignmentID id.AssignmentID, at time.Time) (*worker.Offer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: begin convert offer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM router_workers WHERE id = $1 FOR UPDATE`,
		workerID.String(),
	).Scan(&locked)
	if err != nil {
		if isNoRows(err) {
			return nil, router.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("router/postgres: lock worker: %w", err)
	}

	o := &worker.Offer{ID: offerID, WorkerID: workerID}
	var jobStr string
	err = tx.QueryRow(ctx, `
		DELETE FROM router_offers
		WHERE id = $1 AND worker_id = $2
		RETURNING job_id, channel, capacity_cost, offered_at, expires_at`,
		offerID.String(), workerID.String(),
	).Scan(&jobStr, &o.Channel, &o.CapacityCost, &o.OfferedAt, &o.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, router.ErrRaceLost
		}
		return nil, fmt.Errorf("router/postgres: delete offer: %w", err)
	}

	parsedJob, parseErr := id.ParseJobID(jobStr)
	if parseErr != nil {
		return nil, fmt.Errorf("router/postgres: parse job id %q: %w", jobStr, parseErr)
	}
	o.JobID = parsedJob

	_, err = tx.Exec(ctx, `
		INSERT INTO router_worker_assignments (
			id, worker_id, job_id, capacity_cost, assigned_at
		) VALUES ($1, $2, $3, $4, $5)`,
		assignmentID.String(), workerID.String(), jobStr, o.CapacityCost, at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: insert assignment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE router_workers SET last_assigned_at = $2, updated_at = NOW() WHERE id = $1`,
		workerID.String(), at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: stamp last assigned: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("router/postgres: commit convert offer: %w", err)
	}
	return o, nil
}

// ReleaseAssignment frees the capacity held by an active assignment.
// Idempotent.
func (s *Store) ReleaseAssignment(ctx context.Context, workerID id.WorkerID, assignmentID id.AssignmentID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM router_worker_assignments WHERE id = $1 AND worker_id = $2`,
		assignmentID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("router/postgres: release assignment: %w", err)
	}
	return nil
}

// ListOffersByJob returns every outstanding offer for a job across all
// workers.
func (s *Store) ListOffersByJob(ctx context.Context, jobID id.JobID) ([]*worker.Offer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, worker_id, channel, capacity_cost, offered_at, expires_at
		FROM router_offers
		WHERE job_id = $1
		ORDER BY id ASC`,
		jobID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list offers by job: %w", err)
	}
	defer rows.Close()

	return collectOffers(rows)
}

// ListExpiredOffers returns outstanding offers at or past their expiration.
func (s *Store) ListExpiredOffers(ctx context.Context, asOf time.Time) ([]*worker.Offer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, worker_id, channel, capacity_cost, offered_at, expires_at
		FROM router_offers
		WHERE expires_at <= $1
		ORDER BY expires_at ASC`,
		asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list expired offers: %w", err)
	}
	defer rows.Close()

	return collectOffers(rows)
}

// loadWorkerState fills in offers and active assignments for the given
// workers with two queries.
func (s *Store) loadWorkerState(ctx context.Context, workers []*worker.Worker) error {
	if len(workers) == 0 {
		return nil
	}

	byID := make(map[string]*worker.Worker, len(workers))
	ids := make([]string, 0, len(workers))
	for _, w := range workers {
		byID[w.ID.String()] = w
		ids = append(ids, w.ID.String())
	}

	offerRows, err := s.pool.Query(ctx, `
		SELECT id, job_id, worker_id, channel, capacity_cost, offered_at, expires_at
		FROM router_offers
		WHERE worker_id = ANY($1)
		ORDER BY offered_at ASC`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: load offers: %w", err)
	}
	offers, err := collectOffers(offerRows)
	offerRows.Close()
	if err != nil {
		return err
	}
	for _, o := range offers {
		if w, ok := byID[o.WorkerID.String()]; ok {
			w.Offers = append(w.Offers, o)
		}
	}

	asgRows, err := s.pool.Query(ctx, `
		SELECT id, worker_id, job_id, capacity_cost, assigned_at
		FROM router_worker_assignments
		WHERE worker_id = ANY($1)
		ORDER BY assigned_at ASC`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: load active assignments: %w", err)
	}
	defer asgRows.Close()

	for asgRows.Next() {
		var (
			a         worker.ActiveAssignment
			idStr     string
			workerStr string
			jobStr    string
		)
		if err := asgRows.Scan(&idStr, &workerStr, &jobStr, &a.CapacityCost, &a.AssignedAt); err != nil {
			return fmt.Errorf("router/postgres: scan active assignment: %w", err)
		}
		parsedID, parseErr := id.ParseAssignmentID(idStr)
		if parseErr != nil {
			return fmt.Errorf("router/postgres: parse assignment id %q: %w", idStr, parseErr)
		}
		a.AssignmentID = parsedID
		parsedJob, jobErr := id.ParseJobID(jobStr)
		if jobErr != nil {
			return fmt.Errorf("router/postgres: parse job id %q: %w", jobStr, jobErr)
		}
		a.JobID = parsedJob
		if w, ok := byID[workerStr]; ok {
			w.Assignments = append(w.Assignments, &a)
		}
	}
	if err := asgRows.Err(); err != nil {
		return fmt.Errorf("router/postgres: iterate active assignments: %w", err)
	}
	return nil
}

// scanWorker scans a single worker row.
func scanWorker(row pgx.Row) (*worker.Worker, error) {
	var (
		w           worker.Worker
		idStr       string
		stateStr    string
		channelsRaw []byte
		queueIDsRaw []byte
	)
	err := row.Scan(
		&idStr, &w.Name, &stateStr, &w.Capacity, &channelsRaw, &queueIDsRaw,
		&w.MaxConcurrentOffers, &w.AvailableForOffers,
		&w.LastAssignedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.State = worker.State(stateStr)

	parsedID, parseErr := id.ParseWorkerID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("router/postgres: parse worker id %q: %w", idStr, parseErr)
	}
	w.ID = parsedID

	if err := json.Unmarshal(channelsRaw, &w.Channels); err != nil {
		return nil, fmt.Errorf("router/postgres: unmarshal channels: %w", err)
	}
	if err := json.Unmarshal(queueIDsRaw, &w.QueueIDs); err != nil {
		return nil, fmt.Errorf("router/postgres: unmarshal queue ids: %w", err)
	}

	return &w, nil
}

// scanOffer scans a single offer row.
func scanOffer(row pgx.Row) (*worker.Offer, error) {
	var (
		o         worker.Offer
		idStr     string
		jobStr    string
		workerStr string
	)
	err := row.Scan(
		&idStr, &jobStr, &workerStr, &o.Channel, &o.CapacityCost,
		&o.OfferedAt, &o.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseOfferID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("router/postgres: parse offer id %q: %w", idStr, parseErr)
	}
	o.ID = parsedID

	parsedJob, jobErr := id.ParseJobID(jobStr)
	if jobErr != nil {
		return nil, fmt.Errorf("router/postgres: parse job id %q: %w", jobStr, jobErr)
	}
	o.JobID = parsedJob

	parsedWorker, workerErr := id.ParseWorkerID(workerStr)
	if workerErr != nil {
		return nil, fmt.Errorf("router/postgres: parse worker id %q: %w", workerStr, workerErr)
	}
	o.WorkerID = parsedWorker

	return &o, nil
}

// collectWorkers collects all workers from query rows.
func collectWorkers(rows pgx.Rows) ([]*worker.Worker, error) {
	var workers []*worker.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("router/postgres: scan worker row: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("router/postgres: iterate worker rows: %w", err)
	}
	return workers, nil
}

// collectOffers collects all offers from query rows.
func collectOffers(rows pgx.Rows) ([]*worker.Offer, error) {
	var offers []*worker.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("router/postgres: scan offer row: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("router/postgres: iterate offer rows: %w", err)
	}
	return offers, nil
}
