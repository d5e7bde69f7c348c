package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/metricsd/internal/web/auth"
	"github.com/conduit-lang/metricsd/internal/web/response"
)

// Auth requires a valid bearer token and stores its principal in the
// request context
func Auth(tokens *auth.TokenService) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				response.Detail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.Detail(w, http.StatusUnauthorized, "Invalid authorization header.")
				return
			}

			principal, err := tokens.ValidateToken(token)
			if err != nil {
				response.Detail(w, http.StatusUnauthorized, "Invalid token.")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireOrganization rejects requests for an organization the principal
// is not a member of. The organization id is read from the named URL
// parameter.
func RequireOrganization(param string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil {
				response.Detail(w, http.StatusNotFound, "The requested resource does not exist")
				return
			}

			principal, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				response.Detail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			if !principal.MemberOf(orgID) {
				response.Detail(w, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
