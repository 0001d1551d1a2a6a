package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/router/id"
	"github.com/xraph/router/worker"
)

func (a *API) upsertWorker(ctx forge.Context, w *worker.Worker) (*worker.Worker, error) {
	if w.ID.IsNil() {
		w.ID = id.NewWorkerID()
	}

	if err := a.eng.UpsertWorker(ctx.Context(), w); err != nil {
		return nil, mapStoreError(err)
	}
	return w, ctx.JSON(http.StatusOK, w)
}

func (a *API) listWorkers(ctx forge.Context) error {
	workers, err := a.eng.ListWorkers(ctx.Context())
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	return ctx.JSON(http.StatusOK, workers)
}

func (a *API) getWorker(ctx forge.Context) error {
	workerID, err := id.ParseWorkerID(ctx.Param("workerId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid worker ID: %v", err))
	}

	w, err := a.eng.GetWorker(ctx.Context(), workerID)
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, w)
}

func (a *API) deregisterWorker(ctx forge.Context) error {
	workerID, err := id.ParseWorkerID(ctx.Param("workerId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid worker ID: %v", err))
	}

	if err := a.eng.DeregisterWorker(ctx.Context(), workerID); err != nil {
		return mapStoreError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}
