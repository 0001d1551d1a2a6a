package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/policy"
)

// UpsertPolicy inserts or replaces a distribution policy.
func (s *Store) UpsertPolicy(ctx context.Context, p *policy.DistributionPolicy) error {
	pID := p.ID.String()
	key := policyKey(pID)

	fields := map[string]interface{}{
		"id":                    pID,
		"name":                  p.Name,
		"mode":                  string(p.Mode),
		"min_concurrent_offers": strconv.Itoa(p.MinConcurrentOffers),
		"max_concurrent_offers": strconv.Itoa(p.MaxConcurrentOffers),
		"offer_ttl":             strconv.FormatInt(int64(p.OfferTTL), 10),
		"created_at":            p.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":            time.Now().UTC().Format(time.RFC3339Nano),
	}

	// Preserve the original creation time on re-upsert.
	createdAt, err := s.client.HGet(ctx, key, "created_at").Result()
	if err == nil && createdAt != "" {
		fields["created_at"] = createdAt
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, policyIDsKey, pID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: upsert policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy by ID.
func (s *Store) GetPolicy(ctx context.Context, policyID id.PolicyID) (*policy.DistributionPolicy, error) {
	vals, err := s.client.HGetAll(ctx, policyKey(policyID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: get policy: %w", err)
	}
	if len(vals) == 0 {
		return nil, router.ErrPolicyNotFound
	}
	return mapToPolicy(vals)
}

// ListPolicies returns all distribution policies.
func (s *Store) ListPolicies(ctx context.Context) ([]*policy.DistributionPolicy, error) {
	ids, err := s.client.SMembers(ctx, policyIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("router/redis: list policies smembers: %w", err)
	}

	policies := make([]*policy.DistributionPolicy, 0, len(ids))
	for _, pID := range ids {
		vals, getErr := s.client.HGetAll(ctx, policyKey(pID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		p, mapErr := mapToPolicy(vals)
		if mapErr != nil {
			continue
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// DeletePolicy removes a policy by ID.
func (s *Store) DeletePolicy(ctx context.Context, policyID id.PolicyID) error {
	pID := policyID.String()
	key := policyKey(pID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("router/redis: delete policy exists: %w", err)
	}
	if exists == 0 {
		return router.ErrPolicyNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, policyIDsKey, pID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("router/redis: delete policy: %w", err)
	}
	return nil
}

func mapToPolicy(m map[string]string) (*policy.DistributionPolicy, error) {
	pID, err := id.ParsePolicyID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("router/redis: parse policy id: %w", err)
	}

	minOffers, _ := strconv.Atoi(m["min_concurrent_offers"])      //nolint:errcheck // best-effort parse from trusted Redis data
	maxOffers, _ := strconv.Atoi(m["max_concurrent_offers"])      //nolint:errcheck // best-effort parse from trusted Redis data
	ttl, _ := strconv.ParseInt(m["offer_ttl"], 10, 64)            //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &policy.DistributionPolicy{
		Entity: router.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:                  pID,
		Name:                m["name"],
		Mode:                policy.Mode(m["mode"]),
		MinConcurrentOffers: minOffers,
		MaxConcurrentOffers: maxOffers,
		OfferTTL:            time.Duration(ttl),
	}, nil
}
