package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/router"
	"github.com/xraph/router/id"
	"github.com/xraph/router/policy"
)

// UpsertPolicy inserts or replaces a distribution policy.
func (s *Store) UpsertPolicy(ctx context.Context, p *policy.DistributionPolicy) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO router_policies (
			id, name, mode, min_concurrent_offers, max_concurrent_offers,
			offer_ttl, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			mode = EXCLUDED.mode,
			min_concurrent_offers = EXCLUDED.min_concurrent_offers,
			max_concurrent_offers = EXCLUDED.max_concurrent_offers,
			offer_ttl = EXCLUDED.offer_ttl,
			updated_at = NOW()`,
		p.ID.String(), p.Name, string(p.Mode), p.MinConcurrentOffers,
		p.MaxConcurrentOffers, p.OfferTTL.Nanoseconds(), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("router/postgres: upsert policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy by ID.
func (s *Store) GetPolicy(ctx context.Context, policyID id.PolicyID) (*policy.DistributionPolicy, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, mode, min_concurrent_offers, max_concurrent_offers,
		       offer_ttl, created_at, updated_at
		FROM router_policies
		WHERE id = $1`,
		policyID.String(),
	)

	p, err := scanPolicy(row)
	if err != nil {
		if isNoRows(err) {
			return nil, router.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("router/postgres: get policy: %w", err)
	}
	return p, nil
}

// ListPolicies returns all distribution policies.
func (s *Store) ListPolicies(ctx context.Context) ([]*policy.DistributionPolicy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, mode, min_concurrent_offers, max_concurrent_offers,
		       offer_ttl, created_at, updated_at
		FROM router_policies
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("router/postgres: list policies: %w", err)
	}
	defer rows.Close()

	var policies []*policy.DistributionPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("router/postgres: scan policy row: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("router/postgres: iterate policy rows: %w", err)
	}
	return policies, nil
}

// DeletePolicy removes a policy by ID.
func (s *Store) DeletePolicy(ctx context.Context, policyID id.PolicyID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM router_policies WHERE id = $1`, policyID.String())
	if err != nil {
		return fmt.Errorf("router/postgres: delete policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return router.ErrPolicyNotFound
	}
	return nil
}

// scanPolicy scans a single policy row.
func scanPolicy(row pgx.Row) (*policy.DistributionPolicy, error) {
	var (
		p     policy.DistributionPolicy
		idStr string
		mode  string
		ttlNs int64
	)
	err := row.Scan(
		&idStr, &p.Name, &mode, &p.MinConcurrentOffers, &p.MaxConcurrentOffers,
		&ttlNs, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Mode = policy.Mode(mode)
	p.OfferTTL = time.Duration(ttlNs)

	parsedID, parseErr := id.ParsePolicyID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("router/postgres: parse policy id %q: %w", idStr, parseErr)
	}
	p.ID = parsedID

	return &p, nil
}
