package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/worker"
)

// recordOfferScript atomically checks worker eligibility, the concurrent
// offer cap, and remaining capacity, then inserts the offer and updates
// the expiry and per-job indexes.
//
// KEYS: worker hash, offers hash, assignments hash, expiry zset, job offers set
// ARGV: offerID, offer JSON, capacity cost, max offers, expiry ms, member
var recordOfferScript = goredis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return 'notfound' end
local available = redis.call('HGET', KEYS[1], 'available_for_offers')
if state ~= 'active' or available ~= '1' then return 'unavailable' end

local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity'))
local cost = tonumber(ARGV[3])
local maxOffers = tonumber(ARGV[4])

local offers = redis.call('HVALS', KEYS[2])
if maxOffers > 0 and #offers >= maxOffers then return 'concurrency' end

local inuse = 0
for _, v in ipairs(offers) do
	inuse = inuse + cjson.decode(v)['capacity_cost']
end
for _, v in ipairs(redis.call('HVALS', KEYS[3])) do
	inuse = inuse + cjson.decode(v)['capacity_cost']
end
if inuse + cost > capacity then return 'capacity' end

redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[4], ARGV[5], ARGV[6])
redis.call('SADD', KEYS[5], ARGV[6])
return 'ok'
`)

// convertOfferScript atomically swaps an outstanding offer for an active
// assignment. Returns the offer JSON, or 'race' when the offer is gone.
//
// KEYS: worker hash, offers hash, assignments hash, expiry zset, job offers set
// ARGV: offerID, assignment JSON, assignmentID, assigned-at RFC3339, member
var convertOfferScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 'notfound' end
local offer = redis.call('HGET', KEYS[2], ARGV[1])
if not offer then return 'race' end

redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[5])
redis.call('SREM', KEYS[5], ARGV[5])
redis.call('HSET', KEYS[3], ARGV[3], ARGV[2])
redis.call('HSET', KEYS[1], 'last_assigned_at', ARGV[4], 'updated_at', ARGV[4])
return offer
`)

// removeOfferScript removes an outstanding offer and its index entries.
// Returns 1 when removed, 0 when already gone.
//
// KEYS: offers hash, expiry zset, job offers set
// ARGV: offerID, member
var removeOfferScript = goredis.NewScript(`
if redis.call('HDEL', KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('SREM', KEYS[3], ARGV[2])
return 1
`)

// UpsertWorker inserts or replaces a worker's registration. Offers and
// assignments live in their own keys, so re-registration preserves them.
func (s *Store) UpsertWorker(ctx context.Context, w *worker.Worker) error {
	wID := w.ID.String()
	key := workerKey(wID)

	fields := workerToMap(w)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	// Preserve the original registration time on re-register.
	createdAt, err := s.client.HGet(ctx, key, "created_at").Result()
	if err == nil && createdAt != "" {
		fields["created_at"] = createdAt
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, workerIDsKey, wID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: upsert worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker snapshot by ID, including its outstanding
// offers and active assignments.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	return s.getWorkerByID(ctx, workerID.String())
}

// ListWorkersByQueue returns the workers servicing the given queue.
func (s *Store) ListWorkersByQueue(ctx context.Context, queueID id.QueueID) ([]*worker.Worker, error) {
	all, err := s.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	workers := make([]*worker.Worker, 0, len(all))
	for _, w := range all {
		if w.ServesQueue(queueID) {
			workers = append(workers, w)
		}
	}
	return workers, nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	ids, err := s.client.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: list workers smembers: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(ids))
	for _, wID := range ids {
		w, getErr := s.getWorkerByID(ctx, wID)
		if getErr != nil {
			continue // skip missing
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// DeregisterWorker marks the worker inactive without deleting history.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	key := workerKey(workerID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("router/redis: deregister exists: %w", err)
	}
	if exists == 0 {
		return router.ErrWorkerNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key,
		"state", string(worker.StateInactive),
		"available_for_offers", "0",
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("router/redis: deregister worker: %w", err)
	}
	return nil
}

// RecordOffer atomically reserves capacity for an offer via a Lua script.
func (s *Store) RecordOffer(ctx context.Context, workerID id.WorkerID, offer *worker.Offer, maxOffers int) error {
	wID := workerID.String()
	oID := offer.ID.String()

	keys := []string{
		workerKey(wID),
		workerOffersKey(wID),
		workerAssignmentsKey(wID),
		offerExpiryKey,
		jobOffersKey(offer.JobID.String()),
	}
	args := []interface{}{
		oID,
		marshalJSON(offer),
		offer.CapacityCost,
		maxOffers,
		offer.ExpiresAt.UnixMilli(),
		offerMember(wID, oID),
	}

	res, err := recordOfferScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return fmt.Errorf("router/redis: record offer: %w", err)
	}
	switch res {
	case "ok":
		return nil
	case "notfound":
		return router.ErrWorkerNotFound
	case "unavailable":
		return router.ErrWorkerUnavailable
	case "concurrency":
		return router.ErrConcurrencyExceeded
	case "capacity":
		return router.ErrCapacityExceeded
	default:
		return fmt.Errorf("router/redis: record offer: unexpected result %q", res)
	}
}

// RemoveOffer removes an outstanding offer. Idempotent: returns false
// when the offer was already gone.
func (s *Store) RemoveOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID) (bool, error) {
	wID := workerID.String()
	oID := offerID.String()

	// The per-job index key requires the job ID; look it up from the
	// stored offer first. A missing offer is just "already gone".
	raw, err := s.client.HGet(ctx, workerOffersKey(wID), oID).Result()
	if err != nil {
		if err == goredis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("router/redis: remove offer lookup: %w", err)
	}

	var o worker.Offer
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return false, fmt.Errorf("router/redis: decode offer: %w", err)
	}

	keys := []string{
		workerOffersKey(wID),
		offerExpiryKey,
		jobOffersKey(o.JobID.String()),
	}
	removed, err := removeOfferScript.Run(ctx, s.client, keys, oID, offerMember(wID, oID)).Int()
	if err != nil {
		return false, fmt.Errorf("router/redis: remove offer: %w", err)
	}
	return removed == 1, nil
}

// ConvertOffer atomically replaces an outstanding offer with an active
// assignment carrying the same capacity cost.
func (s *Store) ConvertOffer(ctx context.Context, workerID id.WorkerID, offerID id.OfferID, assignmentID id.AssignmentID, at time.Time) (*worker.Offer, error) {
	wID := workerID.String()
	oID := offerID.String()

	// Read the offer up front to learn the job ID and capacity cost; the
	// script re-checks existence atomically.
	raw, err := s.client.HGet(ctx, workerOffersKey(wID), oID).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, router.ErrRaceLost
		}
		return nil, fmt.Errorf("router/redis: convert offer lookup: %w", err)
	}
	var o worker.Offer
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("router/redis: decode offer: %w", err)
	}

	assignment := worker.ActiveAssignment{
		AssignmentID: assignmentID,
		JobID:        o.JobID,
		CapacityCost: o.CapacityCost,
		AssignedAt:   at.UTC(),
	}

	keys := []string{
		workerKey(wID),
		workerOffersKey(wID),
		workerAssignmentsKey(wID),
		offerExpiryKey,
		jobOffersKey(o.JobID.String()),
	}
	args := []interface{}{
		oID,
		marshalJSON(assignment),
		assignmentID.String(),
		at.UTC().Format(time.RFC3339Nano),
		offerMember(wID, oID),
	}

	res, err := convertOfferScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return nil, fmt.Errorf("router/redis: convert offer: %w", err)
	}
	switch res {
	case "notfound":
		return nil, router.ErrWorkerNotFound
	case "race":
		return nil, router.ErrRaceLost
	}

	var converted worker.Offer
	if err := json.Unmarshal([]byte(res), &converted); err != nil {
		return nil, fmt.Errorf("router/redis: decode converted offer: %w", err)
	}
	return &converted, nil
}

// ReleaseAssignment frees the capacity held by an active assignment.
// Idempotent.
func (s *Store) ReleaseAssignment(ctx context.Context, workerID id.WorkerID, assignmentID id.AssignmentID) error {
	err := s.client.HDel(ctx, workerAssignmentsKey(workerID.String()), assignmentID.String()).Err()
	if err != nil {
		return fmt.Errorf("router/redis: release assignment: %w", err)
	}
	return nil
}

// ListOffersByJob returns every outstanding offer for a job across all
// workers.
func (s *Store) ListOffersByJob(ctx context.Context, jobID id.JobID) ([]*worker.Offer, error) {
	members, err := s.client.SMembers(ctx, jobOffersKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: list job offers smembers: %w", err)
	}
	return s.resolveOfferMembers(ctx, members)
}

// ListExpiredOffers returns outstanding offers at or past their expiration.
func (s *Store) ListExpiredOffers(ctx context.Context, asOf time.Time) ([]*worker.Offer, error) {
	members, err := s.client.ZRangeByScore(ctx, offerExpiryKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(asOf.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: list expired zrangebyscore: %w", err)
	}
	return s.resolveOfferMembers(ctx, members)
}

// ── helpers ──

// offerMember encodes a worker/offer pair for the shared index keys.
func offerMember(workerID, offerID string) string {
	return workerID + "|" + offerID
}

func (s *Store) resolveOfferMembers(ctx context.Context, members []string) ([]*worker.Offer, error) {
	var offers []*worker.Offer
	for _, member := range members {
		wID, oID, ok := strings.Cut(member, "|")
		if !ok {
			continue
		}
		raw, err := s.client.HGet(ctx, workerOffersKey(wID), oID).Result()
		if err != nil {
			continue // resolved concurrently
		}
		var o worker.Offer
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("router/redis: decode offer: %w", err)
		}
		offers = append(offers, &o)
	}
	return offers, nil
}

func workerToMap(w *worker.Worker) map[string]interface{} {
	available := "0"
	if w.AvailableForOffers {
		available = "1"
	}
	m := map[string]interface{}{
		"id":                    w.ID.String(),
		"name":                  w.Name,
		"state":                 string(w.State),
		"capacity":              strconv.Itoa(w.Capacity),
		"channels":              marshalJSON(w.Channels),
		"queue_ids":             marshalJSON(w.QueueIDs),
		"max_concurrent_offers": strconv.Itoa(w.MaxConcurrentOffers),
		"available_for_offers":  available,
		"created_at":            w.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":            w.UpdatedAt.Format(time.RFC3339Nano),
	}
	if w.LastAssignedAt != nil {
		m["last_assigned_at"] = w.LastAssignedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getWorkerByID(ctx context.Context, wID string) (*worker.Worker, error) {
	vals, err := s.client.HGetAll(ctx, workerKey(wID)).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: get worker: %w", err)
	}
	if len(vals) == 0 {
		return nil, router.ErrWorkerNotFound
	}

	w, err := mapToWorker(vals)
	if err != nil {
		return nil, err
	}

	offerVals, err := s.client.HGetAll(ctx, workerOffersKey(wID)).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: get worker offers: %w", err)
	}
	for _, raw := range offerVals {
		var o worker.Offer
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("router/redis: decode offer: %w", err)
		}
		w.Offers = append(w.Offers, &o)
	}

	asgVals, err := s.client.HGetAll(ctx, workerAssignmentsKey(wID)).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: get worker assignments: %w", err)
	}
	for _, raw := range asgVals {
		var a worker.ActiveAssignment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("router/redis: decode assignment: %w", err)
		}
		w.Assignments = append(w.Assignments, &a)
	}

	return w, nil
}

func mapToWorker(m map[string]string) (*worker.Worker, error) {
	wID, err := id.ParseWorkerID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("router/redis: parse worker id: %w", err)
	}

	capacity, _ := strconv.Atoi(m["capacity"])                //nolint:errcheck // best-effort parse from trusted Redis data
	maxOffers, _ := strconv.Atoi(m["max_concurrent_offers"])  //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	w := &worker.Worker{
		Entity: router.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:                  wID,
		Name:                m["name"],
		State:               worker.State(m["state"]),
		Capacity:            capacity,
		MaxConcurrentOffers: maxOffers,
		AvailableForOffers:  m["available_for_offers"] == "1",
	}

	if raw := m["channels"]; raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &w.Channels) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if raw := m["queue_ids"]; raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &w.QueueIDs) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["last_assigned_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		w.LastAssignedAt = &t
	}

	return w, nil
}
