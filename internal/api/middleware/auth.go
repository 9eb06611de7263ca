package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sublate/backend/internal/auth"
)

type contextKey string

const UserClaimsKey contextKey = "user_claims"

// bearerToken pulls the JWT from the Authorization header, falling back
// to a token query parameter so plain download links work in a browser.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware rejects requests without a valid token and stashes the
// verified claims in the request context.
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"missing credentials"}`, http.StatusUnauthorized)
				return
			}
			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only the listed roles through. It must sit inside
// AuthMiddleware on the chain.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			switch {
			case claims == nil:
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			case !allowed[claims.Role]:
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// GetClaims returns the claims stashed by AuthMiddleware, or nil.
func GetClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(UserClaimsKey).(*auth.Claims)
	return claims
}
