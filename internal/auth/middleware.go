package auth

import (
	"context"
	"net/http"

	"splitledger/internal/core"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware authenticates the bearer token and stores the user in the
// request context. Requests without a valid session get 401.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		userID, err := s.Authenticate(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid or expired session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user from the context.
func UserID(ctx context.Context) (core.UserID, bool) {
	id, ok := ctx.Value(userIDKey).(core.UserID)
	return id, ok
}
