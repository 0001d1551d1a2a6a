// Package api provides HTTP handlers for the router API.
package api

import (
	"net/http"

	"github.com/xraph/forge"
)

func (a *API) stats(ctx forge.Context) error {
	s, err := a.eng.Stats(ctx.Context())
	if err != nil {
		return forge.InternalError(err)
	}
	return ctx.JSON(http.StatusOK, s)
}
