package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/job"
)

// CreateJob stores the job as a Hash and adds it to the queue's Sorted Set.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("router/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return router.ErrJobAlreadyExists
	}

	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)

	if j.State == job.StateQueued {
		// Score = priority (negated for DESC) + time component for FIFO.
		score := jobScore(j.Priority, j.EnqueuedAt)
		pipe.ZAdd(ctx, queueKey(j.QueueID.String()), goredis.Z{Score: score, Member: jID})
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and keeps the queue
// Sorted Set in sync with the job's state.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("router/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return router.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if j.State == job.StateQueued {
		score := jobScore(j.Priority, j.EnqueuedAt)
		pipe.ZAdd(ctx, queueKey(j.QueueID.String()), goredis.Z{Score: score, Member: jID})
	} else {
		pipe.ZRem(ctx, queueKey(j.QueueID.String()), jID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	// Get queue ID before deleting to remove from the sorted set.
	queueID, err := s.client.HGet(ctx, key, "queue_id").Result()
	if err != nil {
		if err == goredis.Nil {
			return router.ErrJobNotFound
		}
		return fmt.Errorf("router/redis: delete job get queue: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, queueKey(queueID), jID)
	pipe.Del(ctx, jobOffersKey(jID))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: delete job: %w", err)
	}
	return nil
}

// ListQueuedJobs returns the queued jobs for a queue in dispatch order.
// The Sorted Set score already encodes priority DESC, EnqueuedAt ASC.
func (s *Store) ListQueuedJobs(ctx context.Context, queueID id.QueueID) ([]*job.Job, error) {
	ids, err := s.client.ZRange(ctx, queueKey(queueID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: list queued zrange: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != job.StateQueued {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		if !opts.QueueID.IsNil() && j.QueueID != opts.QueueID {
			continue
		}
		jobs = append(jobs, j)
	}

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("router/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if !opts.QueueID.IsNil() && j.QueueID != opts.QueueID {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeFinishedJobs removes closed and cancelled jobs last updated before
// the given time.
func (s *Store) PurgeFinishedJobs(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("router/redis: purge smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if !j.Terminal() || !j.UpdatedAt.Before(before) {
			continue
		}
		if delErr := s.DeleteJob(ctx, j.ID); delErr != nil {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// jobScore computes a sorted-set score from priority and enqueue time.
// Lower score = dispatched first, so priority is negated.
func jobScore(priority int, enqueuedAt time.Time) float64 {
	return float64(-priority) + float64(enqueuedAt.UnixMilli())/1e15
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":          j.ID.String(),
		"channel":     j.Channel,
		"queue_id":    j.QueueID.String(),
		"priority":    strconv.Itoa(j.Priority),
		"state":       string(j.State),
		"enqueued_at": j.EnqueuedAt.Format(time.RFC3339Nano),
		"assignments": marshalJSON(j.Assignments),
		"created_at":  j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.CancelledAt != nil {
		m["cancelled_at"] = j.CancelledAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, router.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("router/redis: parse job id: %w", err)
	}
	queueID, err := id.ParseQueueID(m["queue_id"])
	if err != nil {
		return nil, fmt.Errorf("router/redis: parse queue id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"]) //nolint:errcheck // best-effort parse from trusted Redis data

	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])   //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: router.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:         jID,
		Channel:    m["channel"],
		QueueID:    queueID,
		Priority:   priority,
		State:      job.State(m["state"]),
		EnqueuedAt: enqueuedAt,
	}

	if raw := m["assignments"]; raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &j.Assignments) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["cancelled_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CancelledAt = &t
	}

	return j, nil
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}
