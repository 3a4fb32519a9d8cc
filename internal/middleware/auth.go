package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/flap-ai/flapd/internal/port/identity"
)

type claimsCtxKey struct{}

// AnonymousUID is the user id every request runs under when token
// verification is disabled.
const AnonymousUID = "anonymous"

// Auth returns middleware that resolves the Authorization bearer token to
// identity claims and rejects requests without a valid token. When verifier
// is nil, auth is disabled and anonymous claims are injected instead.
func Auth(verifier identity.Verifier) func(http.Handler) http.Handler {
	return authMiddleware(verifier, true)
}

// OptionalAuth is like Auth but lets unauthenticated requests through with
// anonymous claims. Endpoints that work with or without a signed-in user
// mount this one.
func OptionalAuth(verifier identity.Verifier) func(http.Handler) http.Handler {
	return authMiddleware(verifier, false)
}

func authMiddleware(verifier identity.Verifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), anonymous())))
				return
			}

			token := bearerToken(r)
			if token == "" {
				if required {
					unauthorized(w, "authorization required")
					return
				}
				next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), anonymous())))
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if required {
					unauthorized(w, "invalid token")
					return
				}
				next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), anonymous())))
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// ClaimsFromContext returns the identity claims stored by Auth or
// OptionalAuth. The second return is false when no auth middleware ran.
func ClaimsFromContext(ctx context.Context) (*identity.Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*identity.Claims)
	return claims, ok
}

// UID returns the authenticated user id, or AnonymousUID when none is set.
func UID(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok && claims.UID != "" {
		return claims.UID
	}
	return AnonymousUID
}

func withClaims(ctx context.Context, claims *identity.Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

func anonymous() *identity.Claims {
	return &identity.Claims{UID: AnonymousUID}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
