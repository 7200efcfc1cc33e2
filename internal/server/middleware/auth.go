package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/entsync/entsync/pkg/api"
)

// TokenVerifier checks an access token and returns the username it belongs
// to. Implemented by the jwt package.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type contextKey string

// usernameKey carries the authenticated username through the request context.
const usernameKey contextKey = "username"

// Username extracts the authenticated username set by Auth.
func Username(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}

// WithUsername returns a context carrying the authenticated username, for
// handler tests that bypass the middleware.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// Auth requires a valid bearer token and stores the authenticated username in
// the request context.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "Missing bearer token")
				return
			}

			username, err := verifier.Verify(token)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Message: message})
}
