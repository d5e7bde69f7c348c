// Package router wraps chi with route introspection
package router

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/metricsd/internal/web/middleware"
)

// RouteInfo describes a registered route
type RouteInfo struct {
	Method     string
	Pattern    string
	Parameters []string
}

// Router is a chi router that records the routes registered on it
type Router struct {
	mux chi.Router
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{mux: chi.NewRouter()}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use adds middleware to every route. It must be called before any route
// is registered.
func (r *Router) Use(middlewares ...middleware.Middleware) {
	for _, m := range middlewares {
		r.mux.Use(m)
	}
}

// Get registers a GET handler
func (r *Router) Get(pattern string, handler http.HandlerFunc) {
	r.mux.Get(pattern, handler)
}

// Post registers a POST handler
func (r *Router) Post(pattern string, handler http.HandlerFunc) {
	r.mux.Post(pattern, handler)
}

// Handle registers a handler for every method
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

// Group registers routes under prefix that share extra middleware
func (r *Router) Group(prefix string, middlewares []middleware.Middleware, fn func(g *Router)) {
	r.mux.Route(prefix, func(sub chi.Router) {
		for _, m := range middlewares {
			sub.Use(m)
		}
		fn(&Router{mux: sub})
	})
}

// NotFound sets the handler for unmatched paths
func (r *Router) NotFound(handler http.HandlerFunc) {
	r.mux.NotFound(handler)
}

// MethodNotAllowed sets the handler for unsupported methods
func (r *Router) MethodNotAllowed(handler http.HandlerFunc) {
	r.mux.MethodNotAllowed(handler)
}

// Routes lists the registered routes sorted by pattern then method
func (r *Router) Routes() []RouteInfo {
	var routes []RouteInfo
	chi.Walk(r.mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, RouteInfo{
			Method:     method,
			Pattern:    route,
			Parameters: extractParameters(route),
		})
		return nil
	})
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Pattern != routes[j].Pattern {
			return routes[i].Pattern < routes[j].Pattern
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// extractParameters returns the names of the {param} segments of a pattern
func extractParameters(pattern string) []string {
	var params []string
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := strings.Trim(part, "{}")
			if i := strings.Index(name, ":"); i >= 0 {
				name = name[:i]
			}
			params = append(params, name)
		}
	}
	return params
}
