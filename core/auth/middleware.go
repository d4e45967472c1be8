package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"Tunehub/logger"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity set by Middleware, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// ExternalIDFromContext returns the caller's external id, or "".
func ExternalIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.ExternalID
	}
	return ""
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware resolves a bearer token when one is present. Requests without a
// valid token pass through anonymously; RequireAuth decides whether that is
// acceptable.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := BearerToken(req)
		if token == "" {
			next.ServeHTTP(w, req)
			return
		}

		id, err := r.Resolve(token)
		if err != nil {
			logger.Debug("bearer token rejected",
				logger.ErrorField(err),
				logger.String("path", req.URL.Path))
			next.ServeHTTP(w, req)
			return
		}
		next.ServeHTTP(w, req.WithContext(WithIdentity(req.Context(), id)))
	})
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			deny(w, http.StatusUnauthorized, "Unauthorized - you must be logged in")
			return
		}
		next(w, r)
	}
}

// RequireAdmin rejects callers that are not the configured admin with 403.
func RequireAdmin(adminExternalID, adminEmail string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())
			if !IsAdmin(id, adminExternalID, adminEmail) {
				deny(w, http.StatusForbidden, "Unauthorized - you must be an admin")
				return
			}
			next(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
