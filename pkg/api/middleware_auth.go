package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dd0wney/dualdb/pkg/auth"
	"github.com/dd0wney/dualdb/pkg/logging"
)

// Context key for storing claims
type contextKey string

const claimsContextKey contextKey = "claims"

// claimsFromContext returns the claims stored by requireAdmin.
func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// requireAdmin middleware validates the bearer token and requires the admin role
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jwtManager == nil {
			s.respondError(w, http.StatusForbidden, "Admin endpoints are disabled")
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := s.jwtManager.ValidateToken(r.Context(), token)
		if err != nil {
			s.logger.Warn("token validation failed",
				logging.String("path", r.URL.Path),
				logging.Error(err))
			s.respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if claims.Role != auth.RoleAdmin {
			s.logger.Warn("admin access denied",
				logging.String("subject", claims.Subject),
				logging.String("role", claims.Role),
				logging.String("path", r.URL.Path))
			s.respondError(w, http.StatusForbidden, "Admin access required")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
