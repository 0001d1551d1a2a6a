package policy

import (
	"context"

	"github.com/xraph/router/id"
)

// Store defines the persistence contract for distribution policies.
type Store interface {
	// UpsertPolicy inserts or replaces a distribution policy.
	UpsertPolicy(ctx context.Context, p *DistributionPolicy) error

	// GetPolicy retrieves a policy by ID.
	GetPolicy(ctx context.Context, policyID id.PolicyID) (*DistributionPolicy, error)

	// ListPolicies returns all distribution policies.
	ListPolicies(ctx context.Context) ([]*DistributionPolicy, error)

	// DeletePolicy removes a policy by ID.
	DeletePolicy(ctx context.Context, policyID id.PolicyID) error
}
