package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/datasource"
	"github.com/conduit-lang/metricsd/internal/metrics/snql"
	"github.com/conduit-lang/metricsd/internal/orm"
	"github.com/conduit-lang/metricsd/internal/web/response"
)

// projects loads the requested projects, writing the error response itself
// when it fails
func (a *API) projects(w http.ResponseWriter, r *http.Request) ([]metrics.Project, bool) {
	ids, err := projectIDs(r.URL.Query())
	if err != nil {
		response.Detail(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	projects, err := a.deps.Projects.GetProjects(r.Context(), orgID(r), ids)
	if orm.IsNotFound(err) {
		response.Detail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return nil, false
	}
	if err != nil {
		a.internalError(w, r, err)
		return nil, false
	}
	return projects, true
}

func (a *API) metricMeta(w http.ResponseWriter, r *http.Request) {
	projects, ok := a.projects(w, r)
	if !ok {
		return
	}

	meta, err := a.deps.Metrics.GetSingleMetricInfo(r.Context(), projects, chi.URLParam(r, "metric_name"))
	if metrics.IsInvalidParams(err) {
		response.Detail(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, meta)
}

func (a *API) metricsData(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	def := datasource.QueryDefinition{
		Fields:  query["field"],
		GroupBy: query["groupBy"],
	}
	if len(def.Fields) == 0 {
		response.Detail(w, http.StatusBadRequest, "Request is missing a \"field\"")
		return
	}
	if orderBy := query.Get("orderBy"); orderBy != "" {
		def.OrderBy = strings.TrimPrefix(orderBy, "-")
		if strings.HasPrefix(orderBy, "-") {
			def.Direction = snql.Desc
		}
	}
	limit, err := optionalInt(query, "limit")
	if err != nil {
		response.Detail(w, http.StatusBadRequest, err.Error())
		return
	}
	def.Limit = limit

	projects, ok := a.projects(w, r)
	if !ok {
		return
	}

	totals, err := a.deps.Metrics.GetTotals(r.Context(), projects, def)
	if isClientError(err) {
		response.Detail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, totals)
}

// isClientError reports whether a metrics error was caused by the request
func isClientError(err error) bool {
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return metrics.IsInvalidParams(err) ||
		metrics.IsMultiEntity(err) ||
		errors.Is(err, metrics.ErrUnknownOperation) ||
		errors.Is(err, metrics.ErrInvalidField) ||
		errors.Is(err, metrics.ErrEntityNotResolved)
}
