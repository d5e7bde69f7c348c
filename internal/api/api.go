// Package api serves the organization scoped REST endpoints
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/integrations"
	"github.com/conduit-lang/metricsd/internal/metrics"
	"github.com/conduit-lang/metricsd/internal/metrics/datasource"
	"github.com/conduit-lang/metricsd/internal/models"
	"github.com/conduit-lang/metricsd/internal/web/auth"
	"github.com/conduit-lang/metricsd/internal/web/middleware"
	"github.com/conduit-lang/metricsd/internal/web/ratelimit"
	"github.com/conduit-lang/metricsd/internal/web/response"
	"github.com/conduit-lang/metricsd/internal/web/router"
)

// MetricsService answers metric metadata and data requests
type MetricsService interface {
	GetSingleMetricInfo(ctx context.Context, projects []metrics.Project, name string) (metrics.MetricMetaWithTagKeys, error)
	GetTotals(ctx context.Context, projects []metrics.Project, def datasource.QueryDefinition) (datasource.Totals, error)
}

// ProjectLoader loads the projects of an organization
type ProjectLoader interface {
	GetProjects(ctx context.Context, orgID int64, ids []int64) ([]metrics.Project, error)
}

// IncidentService reads incidents and marks them seen
type IncidentService interface {
	Get(ctx context.Context, orgID, identifier int64) (*models.Incident, error)
	SetSeen(ctx context.Context, incident *models.Incident, userID int64) (bool, error)
}

// CodeMappingLoader loads code mappings
type CodeMappingLoader interface {
	Get(ctx context.Context, orgID, configID int64) (*models.CodeMapping, error)
}

// CodeownersFetcher fetches the CODEOWNERS file of a code mapping
type CodeownersFetcher interface {
	GetCodeownerContents(ctx context.Context, cm *models.CodeMapping) (*integrations.CodeownerFile, error)
}

// Dependencies are the services behind the handlers
type Dependencies struct {
	Metrics      MetricsService
	Projects     ProjectLoader
	Incidents    IncidentService
	CodeMappings CodeMappingLoader
	Codeowners   CodeownersFetcher
}

// Config configures the HTTP surface
type Config struct {
	Tokens         *auth.TokenService
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	// RateLimiter limits each organization's requests when set
	RateLimiter ratelimit.RateLimiter
}

// API holds the handlers
type API struct {
	deps   Dependencies
	logger *zap.Logger
}

// New creates the handlers
func New(deps Dependencies, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{deps: deps, logger: logger}
}

// Handler builds the router with every route and middleware
func (a *API) Handler(config Config) *router.Router {
	logger := config.Logger
	if logger == nil {
		logger = a.logger
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := router.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    logger,
			SkipPaths: []string{"/healthz", "/metrics"},
		}),
		middleware.Recovery(logger),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Detail(w, http.StatusNotFound, "The requested resource does not exist")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	orgScoped := []middleware.Middleware{
		middleware.Timeout(config.RequestTimeout),
		middleware.Auth(config.Tokens),
		middleware.RequireOrganization("org"),
	}
	if config.RateLimiter != nil {
		orgScoped = append(orgScoped, middleware.RateLimit(config.RateLimiter, middleware.OrganizationKey("org"), logger))
	}
	etag := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.ETag()(h).ServeHTTP
	}
	r.Group("/api/0/organizations/{org}", orgScoped, func(g *router.Router) {
		g.Get("/metrics/meta/{metric_name}", etag(a.metricMeta))
		g.Get("/metrics/data", a.metricsData)
		g.Post("/incidents/{incident}/seen", a.incidentSeen)
		g.Get("/code-mappings/{config}/codeowners", etag(a.codeowners))
	})
	return r
}

// internalError logs err and writes a 500
func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("request failed",
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	response.Detail(w, http.StatusInternalServerError, "Internal Error")
}
