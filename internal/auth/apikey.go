// Package auth provides authentication middleware for API key and JWT-based
// user authentication.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the request header carrying the API key
	APIKeyHeader = "X-API-Key"

	// userContextKey is the context key for storing the authenticated user
	userContextKey contextKey = "user"
)

// UserInfo holds the authenticated user extracted from the request.
type UserInfo struct {
	ID    uuid.UUID
	Email string
	Name  string
}

// Middleware authenticates requests by API key or bearer token and places
// the resolved user in the request context.
type Middleware struct {
	users  repository.UserRepository
	jwt    *JWTManager
	logger *slog.Logger
}

// NewMiddleware creates authentication middleware. The JWT manager may be
// nil, in which case only API keys are accepted.
func NewMiddleware(users repository.UserRepository, jwt *JWTManager, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{users: users, jwt: jwt, logger: logger}
}

// Authenticate wraps a handler with authentication. The API key header is
// tried first, then an Authorization bearer token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.resolveUser(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) resolveUser(r *http.Request) (*UserInfo, error) {
	if apiKey := strings.TrimSpace(r.Header.Get(APIKeyHeader)); apiKey != "" {
		user, err := m.users.GetByAPIKey(r.Context(), apiKey)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, errors.New("invalid API key")
			}
			m.logger.Error("failed to validate API key", "error", err)
			return nil, errors.New("authentication unavailable")
		}
		return &UserInfo{ID: user.ID, Email: user.Email, Name: user.Name}, nil
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") && m.jwt != nil {
		claims, err := m.jwt.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return nil, err
		}
		userID, err := claims.GetUserID()
		if err != nil {
			return nil, ErrInvalidClaims
		}
		return &UserInfo{ID: userID, Email: claims.Email}, nil
	}

	return nil, errors.New("missing credentials")
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"kind":    "unauthorized",
		"message": err.Error(),
	})
}

// UserFromContext extracts the authenticated user from context
func UserFromContext(ctx context.Context) (*UserInfo, bool) {
	user, ok := ctx.Value(userContextKey).(*UserInfo)
	return user, ok
}

// UserIDFromContext extracts just the user ID from context
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return user.ID, true
}

// ContextWithUser returns a context carrying the given user. Intended for
// tests and internal jobs acting on a user's behalf.
func ContextWithUser(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
