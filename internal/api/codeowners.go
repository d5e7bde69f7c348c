package api

import (
	"net/http"

	"github.com/conduit-lang/metricsd/internal/orm"
	"github.com/conduit-lang/metricsd/internal/web/response"
)

// codeowners returns the CODEOWNERS file of a code mapping's repository
func (a *API) codeowners(w http.ResponseWriter, r *http.Request) {
	configID, ok := pathID(r, "config")
	if !ok {
		response.Empty(w, http.StatusNotFound)
		return
	}

	cm, err := a.deps.CodeMappings.Get(r.Context(), orgID(r), configID)
	if orm.IsNotFound(err) {
		response.Empty(w, http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}

	file, err := a.deps.Codeowners.GetCodeownerContents(r.Context(), cm)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if file == nil || file.Raw == "" {
		response.Empty(w, http.StatusNotFound)
		return
	}
	response.JSON(w, http.StatusOK, file)
}
