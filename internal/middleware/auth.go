package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"kakehashi/internal/auth"
	"kakehashi/internal/httputil"
)

// Auth verifies the Bearer token on every request and stores the user ID in
// the request context. Unauthenticated requests get a 401 problem response.
//
// Paths in skip are passed through without verification (health checks).
func Auth(verifier auth.JWTVerifier, logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, path := range skip {
		skipped[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "authorization header must be a Bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("token verification failed", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			userID := claims.GetUserID()
			if userID == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "token has no subject")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, userID))
		})
	}
}
