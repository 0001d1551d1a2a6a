package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
)

// CreateJob persists a new job in queued state.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO router_jobs (
			id, channel, queue_id, priority, state,
			enqueued_at, cancelled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID.String(), j.Channel, j.QueueID.String(), j.Priority, string(j.State),
		j.EnqueuedAt, j.CancelledAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return router.ErrJobAlreadyExists
		}
		return fmt.Errorf("router/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID, including its assignment history.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, channel, queue_id, priority, state,
		       enqueued_at, cancelled_at, created_at, updated_at
		FROM router_jobs
		WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, router.ErrJobNotFound
		}
		return nil, fmt.Errorf("router/postgres: get job: %w", err)
	}

	if err := s.loadAssignments(ctx, []*job.Job{j}); err != nil {
		return nil, err
	}
	return j, nil
}

// UpdateJob persists changes to an existing job and its assignments.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("router/postgres: begin update job: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE router_jobs SET
			channel = $2, queue_id = $3, priority = $4, state = $5,
			enqueued_at = $6, cancelled_at = $7, updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), j.Channel, j.QueueID.String(), j.Priority, string(j.State),
		j.EnqueuedAt, j.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return router.ErrJobNotFound
	}

	for _, a := range j.Assignments {
		_, err = tx.Exec(ctx, `
			INSERT INTO router_job_assignments (
				id, job_id, worker_id, capacity_cost,
				assigned_at, completed_at, closed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				completed_at = EXCLUDED.completed_at,
				closed_at = EXCLUDED.closed_at`,
			a.ID.String(), a.JobID.String(), a.WorkerID.String(), a.CapacityCost,
			a.AssignedAt, a.CompletedAt, a.ClosedAt,
		)
		if err != nil {
			return fmt.Errorf("router/postgres: upsert assignment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("router/postgres: commit update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID. Assignment rows cascade.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM router_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("router/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return router.ErrJobNotFound
	}
	return nil
}

// ListQueuedJobs returns the queued jobs for a queue ordered by priority
// (descending) then EnqueuedAt (ascending). Queued jobs carry no open
// assignments, so assignment history is not loaded.
func (s *Store) ListQueuedJobs(ctx context.Context, queueID id.QueueID) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel, queue_id, priority, state,
		       enqueued_at, cancelled_at, created_at, updated_at
		FROM router_jobs
		WHERE state = 'queued' AND queue_id = $1
		ORDER BY priority DESC, enqueued_at ASC`,
		queueID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list queued jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `
		SELECT id, channel, queue_id, priority, state,
		       enqueued_at, cancelled_at, created_at, updated_at
		FROM router_jobs
		WHERE state = $1`
	args := []interface{}{string(state)}
	argIdx := 2

	if !opts.QueueID.IsNil() {
		query += fmt.Sprintf(" AND queue_id = $%d", argIdx)
		args = append(args, opts.QueueID.String())
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadAssignments(ctx, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM router_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if !opts.QueueID.IsNil() {
		query += fmt.Sprintf(" AND queue_id = $%d", argIdx)
		args = append(args, opts.QueueID.String())
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("router/postgres: count jobs: %w", err)
	}
	return count, nil
}

// PurgeFinishedJobs removes closed and cancelled jobs last updated before
// the given time. Assignment rows cascade.
func (s *Store) PurgeFinishedJobs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM router_jobs
		WHERE state IN ('closed', 'cancelled') AND updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("router/postgres: purge finished jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// loadAssignments fills in the assignment history for the given jobs with
// a single query.
func (s *Store) loadAssignments(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	byID := make(map[string]*job.Job, len(jobs))
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		byID[j.ID.String()] = j
		ids = append(ids, j.ID.String())
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, worker_id, capacity_cost,
		       assigned_at, completed_at, closed_at
		FROM router_job_assignments
		WHERE job_id = ANY($1)
		ORDER BY assigned_at ASC`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: load assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, jobIDStr, err := scanAssignment(rows)
		if err != nil {
			return fmt.Errorf("router/postgres: scan assignment row: %w", err)
		}
		if j, ok := byID[jobIDStr]; ok {
			j.Assignments = append(j.Assignments, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("router/postgres: iterate assignment rows: %w", err)
	}
	return nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j        job.Job
		idStr    string
		queueStr string
		stateStr string
	)
	err := row.Scan(
		&idStr, &j.Channel, &queueStr, &j.Priority, &stateStr,
		&j.EnqueuedAt, &j.CancelledAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("router/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	parsedQueue, queueErr := id.ParseQueueID(queueStr)
	if queueErr != nil {
		return nil, fmt.Errorf("router/postgres: parse queue id %q: %w", queueStr, queueErr)
	}
	j.QueueID = parsedQueue

	return &j, nil
}

// scanAssignment scans a single assignment row, returning the raw job ID
// so callers can group rows by job.
func scanAssignment(row pgx.Row) (*job.Assignment, string, error) {
	var (
		a         job.Assignment
		idStr     string
		jobStr    string
		workerStr string
	)
	err := row.Scan(
		&idStr, &jobStr, &workerStr, &a.CapacityCost,
		&a.AssignedAt, &a.CompletedAt, &a.ClosedAt,
	)
	if err != nil {
		return nil, "", err
	}

	parsedID, parseErr := id.ParseAssignmentID(idStr)
	if parseErr != nil {
		return nil, "", fmt.Errorf("router/postgres: parse assignment id %q: %w", idStr, parseErr)
	}
	a.ID = parsedID

	parsedJob, jobErr := id.ParseJobID(jobStr)
	if jobErr != nil {
		return nil, "", fmt.Errorf("router/postgres: parse job id %q: %w", jobStr, jobErr)
	}
	a.JobID = parsedJob

	parsedWorker, workerErr := id.ParseWorkerID(workerStr)
	if workerErr != nil {
		return nil, "", fmt.Errorf("router/postgres: parse worker id %q: %w", workerStr, workerErr)
	}
	a.WorkerID = parsedWorker

	return &a, jobStr, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("router/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("router/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
