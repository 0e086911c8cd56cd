package auth

import (
	"net/http"
	"strings"

	"github.com/dot-do/entitykernel/infrastructure/httputil"
	"github.com/dot-do/entitykernel/infrastructure/logging"
)

// Middleware authenticates every request's bearer token, rejecting requests
// that carry none or an invalid one, and attaches the resolved tenant and
// role to the request context for downstream handlers and middleware. The
// HTTP router mounts the rate limiter ahead of this middleware, so rate
// limiting does not see the tenant and keys on the client IP.
func Middleware(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				httputil.Unauthorized(w, r, "missing bearer token")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := m.Validate(token)
			if err != nil {
				httputil.Unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := logging.WithUserID(r.Context(), claims.Tenant)
			ctx = logging.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
