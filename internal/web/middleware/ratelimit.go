package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/metricsd/internal/web/ratelimit"
	"github.com/conduit-lang/metricsd/internal/web/response"
)

// Rate limit response headers
const (
	RateLimitLimitHeader     = "X-Sentry-Rate-Limit-Limit"
	RateLimitRemainingHeader = "X-Sentry-Rate-Limit-Remaining"
	RateLimitResetHeader     = "X-Sentry-Rate-Limit-Reset"
)

// RateLimitKeyFunc extracts the key a request is limited under. An empty
// key skips limiting.
type RateLimitKeyFunc func(*http.Request) string

// OrganizationKey limits requests per organization, read from the named URL
// parameter
func OrganizationKey(param string) RateLimitKeyFunc {
	return func(r *http.Request) string {
		org := chi.URLParam(r, param)
		if org == "" {
			return ""
		}
		return "org:" + org
	}
}

// RateLimit rejects requests over the limiter's budget with a 429. Limiter
// failures let the request through.
func RateLimit(limiter ratelimit.RateLimiter, key RateLimitKeyFunc, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			info, err := limiter.Allow(r.Context(), k)
			if err != nil {
				logger.Warn("rate limit check failed",
					zap.String("key", k),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(RateLimitLimitHeader, strconv.Itoa(info.Limit))
			w.Header().Set(RateLimitRemainingHeader, strconv.Itoa(info.Remaining))
			w.Header().Set(RateLimitResetHeader, strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				retryAfter := int64(math.Ceil(time.Until(info.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				response.Detail(w, http.StatusTooManyRequests, fmt.Sprintf(
					"You are attempting to use this endpoint too frequently. Limit is %d requests in %d seconds",
					info.Limit, int64(math.Ceil(info.Window.Seconds())),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
