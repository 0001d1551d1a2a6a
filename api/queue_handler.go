package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/router/id"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
)

func (a *API) upsertQueue(ctx forge.Context, q *queue.Queue) (*queue.Queue, error) {
	if q.ID.IsNil() {
		q.ID = id.NewQueueID()
	}

	if err := a.eng.UpsertQueue(ctx.Context(), q); err != nil {
		return nil, mapStoreError(err)
	}
	return q, ctx.JSON(http.StatusOK, q)
}

func (a *API) getQueue(ctx forge.Context) error {
	queueID, err := id.ParseQueueID(ctx.Param("queueId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid queue ID: %v", err))
	}

	q, err := a.eng.GetQueue(ctx.Context(), queueID)
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, q)
}

func (a *API) upsertPolicy(ctx forge.Context, p *policy.DistributionPolicy) (*policy.DistributionPolicy, error) {
	if p.ID.IsNil() {
		p.ID = id.NewPolicyID()
	}

	if err := a.eng.UpsertDistributionPolicy(ctx.Context(), p); err != nil {
		return nil, mapStoreError(err)
	}
	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) getPolicy(ctx forge.Context) error {
	policyID, err := id.ParsePolicyID(ctx.Param("policyId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid policy ID: %v", err))
	}

	p, err := a.eng.GetDistributionPolicy(ctx.Context(), policyID)
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, p)
}
