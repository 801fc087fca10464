package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-notify-core/internal/domain"
	jwtinfra "github.com/go-notify-core/internal/infrastructure/jwt"
)

type contextKey string

const claimsKey contextKey = "claims"

// Auth returns middleware that validates the Bearer JWT and injects claims
// into context. Requests without a valid token are rejected.
func Auth(provider *jwtinfra.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := verifyBearer(provider, r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth injects claims when a valid Bearer token is present and falls
// back to a guest identity otherwise. The notification read surface works for
// anonymous sessions, so a missing token is not an error here. A nil provider
// (auth not configured) makes every request a guest.
func OptionalAuth(provider *jwtinfra.Provider) func(http.Handler) http.Handler {
	guest := &jwtinfra.Claims{UserID: domain.GuestUserID, Role: domain.RoleGuest}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := guest
			if provider != nil {
				if c, ok := verifyBearer(provider, r); ok {
					claims = c
				}
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func verifyBearer(provider *jwtinfra.Provider, r *http.Request) (*jwtinfra.Claims, bool) {
	if provider == nil {
		return nil, false
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, false
	}
	claims, err := provider.Verify(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return nil, false
	}
	return claims, true
}

func withClaims(ctx context.Context, claims *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}
