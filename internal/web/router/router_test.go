package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/metricsd/internal/web/middleware"
)

func header(name, value string) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add(name, value)
			next.ServeHTTP(w, r)
		})
	}
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	r.Use(header("X-Global", "1"))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	r.Group("/api/0/organizations/{org}", []middleware.Middleware{header("X-Group", "1")}, func(g *Router) {
		g.Get("/metrics/meta/{metric_name}", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chi.URLParam(r, "org") + ":" + chi.URLParam(r, "metric_name")))
		})
		g.Post("/incidents/{incident}/seen", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/0/organizations/1/metrics/meta/init_sessions", nil))
	assert.Equal(t, "1:init_sessions", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Global"))
	assert.Equal(t, "1", rec.Header().Get("X-Group"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, rec.Header().Get("X-Group"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	routes := r.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, RouteInfo{
		Method:     http.MethodPost,
		Pattern:    "/api/0/organizations/{org}/incidents/{incident}/seen",
		Parameters: []string{"org", "incident"},
	}, routes[0])
	assert.Equal(t, "/health", routes[2].Pattern)
}

func TestExtractParameters(t *testing.T) {
	assert.Equal(t, []string{"org", "id"}, extractParameters("/o/{org}/x/{id:[0-9]+}"))
	assert.Nil(t, extractParameters("/health"))
}
