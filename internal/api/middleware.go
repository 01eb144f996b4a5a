package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/auth"
	"github.com/vibotaj/tracehub/internal/logging"
	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/tenant"
)

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// withRecovery turns panics into 500 envelopes instead of dropped
// connections.
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("Handler panicked")
				writeError(w, r, apperr.New(apperr.KindInternal, "api.recover", "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withRequestID stamps every request with an id, honoring one supplied
// by an upstream proxy.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", logging.RequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the final status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		group := routeGroup(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(group, r.Method, statusClass(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(group).Observe(time.Since(start).Seconds())
	})
}

func routeGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i > 0 {
		path = path[:i]
	}
	if path == "" {
		path = "root"
	}
	return path
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// withRateLimit applies a global token bucket. 429 responses carry the
// standard envelope.
func withRateLimit(limiter *rate.Limiter) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, r, apperr.New(apperr.KindRateLimited, "api.rate_limit", "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withAuth verifies the bearer token and installs the tenant context.
// Paths listed in public are reachable without a token.
func withAuth(tokens *auth.Tokens, public map[string]bool) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] || strings.HasPrefix(r.URL.Path, "/blobs/") {
				next.ServeHTTP(w, r)
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, r, apperr.New(apperr.KindAuthentication, "api.auth", "missing bearer token"))
				return
			}
			tc, err := tokens.Verify(raw)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// Websocket clients cannot set headers from the browser.
	return r.URL.Query().Get("token")
}

// requireTenant extracts the tenant context installed by withAuth.
func requireTenant(r *http.Request) (*tenant.Context, error) {
	tc := tenant.FromContext(r.Context())
	if tc == nil {
		return nil, apperr.New(apperr.KindAuthentication, "api.tenant", "unauthenticated")
	}
	return tc, nil
}
