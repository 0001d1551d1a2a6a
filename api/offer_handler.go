package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/router/id"
)

func (a *API) acceptOffer(ctx forge.Context) error {
	workerID, err := id.ParseWorkerID(ctx.Param("workerId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid worker ID: %v", err))
	}
	offerID, err := id.ParseOfferID(ctx.Param("offerId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid offer ID: %v", err))
	}

	result, err := a.eng.AcceptJobOffer(ctx.Context(), workerID, offerID)
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (a *API) declineOffer(ctx forge.Context, req *DeclineOfferRequest) (*struct{}, error) {
	workerID, err := id.ParseWorkerID(ctx.Param("workerId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid worker ID: %v", err))
	}
	offerID, err := id.ParseOfferID(ctx.Param("offerId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid offer ID: %v", err))
	}

	if err := a.eng.DeclineJobOffer(ctx.Context(), workerID, offerID, req.Reason); err != nil {
		return nil, mapStoreError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
