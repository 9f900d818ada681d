package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfeidau/governor/internal/models"
)

type contextKey string

const (
	clientIPContextKey contextKey = "client_ip"
	callerContextKey   contextKey = "caller"
)

// Identity headers set by the upstream authenticator.
const (
	HeaderUserID         = "X-User-ID"
	HeaderOrganizationID = "X-Organization-ID"
	HeaderProjectID      = "X-Project-ID"
)

// ExtractClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For header first (for proxied requests), then X-Real-IP, finally RemoteAddr.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr, stripping port
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// ClientIPFromContext extracts the client IP from the request context.
// This should be called from handlers wrapped by ClientIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// ClientIPMiddleware is a middleware that extracts and stores the client IP in the request context.
func ClientIPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractClientIP(r)
			ctx := context.WithValue(r.Context(), clientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext returns the caller stored by IdentityMiddleware.
func CallerFromContext(ctx context.Context) (models.Caller, bool) {
	c, ok := ctx.Value(callerContextKey).(models.Caller)
	return c, ok
}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c models.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

// IdentityMiddleware reads the already authenticated identity headers.
// Requests without a user or organization are rejected with 401.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := models.Caller{
				UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
				OrgID:     strings.TrimSpace(r.Header.Get(HeaderOrganizationID)),
				ProjectID: strings.TrimSpace(r.Header.Get(HeaderProjectID)),
			}
			if caller.UserID == "" || caller.OrgID == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":     "missing identity headers",
					"errorCode": "UNAUTHENTICATED",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
