package api

import (
	"net/http"

	"github.com/conduit-lang/metricsd/internal/orm"
	"github.com/conduit-lang/metricsd/internal/web/auth"
	"github.com/conduit-lang/metricsd/internal/web/response"
)

// incidentSeen marks an incident as seen by the caller
func (a *API) incidentSeen(w http.ResponseWriter, r *http.Request) {
	identifier, ok := pathID(r, "incident")
	if !ok {
		response.Detail(w, http.StatusNotFound, "The requested resource does not exist")
		return
	}
	principal, _ := auth.PrincipalFrom(r.Context())

	incident, err := a.deps.Incidents.Get(r.Context(), orgID(r), identifier)
	if orm.IsNotFound(err) {
		response.Detail(w, http.StatusNotFound, "The requested resource does not exist")
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}

	if _, err := a.deps.Incidents.SetSeen(r.Context(), incident, principal.UserID); err != nil {
		a.internalError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, struct{}{})
}
