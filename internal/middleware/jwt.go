package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type key string

// ActorKey carries the authenticated actor identity in the request context.
const ActorKey key = "actor"

// OrgKey carries the authenticated organization identity in the request context.
const OrgKey key = "org_id"

func JWTMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))

			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			if actor, ok := claims["actor"].(string); ok {
				ctx = context.WithValue(ctx, ActorKey, actor)
			}
			if org, ok := claims["org_id"].(string); ok {
				ctx = context.WithValue(ctx, OrgKey, org)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Actor returns the authenticated actor from ctx, or "" when unauthenticated.
func Actor(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey).(string); ok {
		return v
	}
	return ""
}

// Org returns the authenticated organization from ctx, or "" when absent.
func Org(ctx context.Context) string {
	if v, ok := ctx.Value(OrgKey).(string); ok {
		return v
	}
	return ""
}
