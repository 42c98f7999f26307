package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/infolock/server/internal/auth"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/repo"
)

type contextKey string

const (
	claimsKey    contextKey = "claims"
	principalKey contextKey = "principal"
)

// AuthMiddleware validates the bearer token, loads the principal it names and
// attaches both to the request context
func AuthMiddleware(tokens *auth.TokenIssuer, principals repo.PrincipalRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			p, err := principals.FindByRef(r.Context(), claims.Ref())
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, principalKey, &p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the token claims attached by AuthMiddleware
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// GetPrincipal returns the principal attached by AuthMiddleware
func GetPrincipal(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*model.Principal)
	return p, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
