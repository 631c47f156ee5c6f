package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relay-crm/relay/internal/repository"
)

type stubUserRepo struct {
	byKey map[string]*repository.User
}

func (r *stubUserRepo) GetByAPIKey(ctx context.Context, apiKey string) (*repository.User, error) {
	if u, ok := r.byKey[apiKey]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) Create(ctx context.Context, u *repository.User) error { return nil }
func (r *stubUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	return nil, repository.ErrNotFound
}
func (r *stubUserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return nil, repository.ErrNotFound
}
func (r *stubUserRepo) Update(ctx context.Context, u *repository.User) error { return nil }
func (r *stubUserRepo) Delete(ctx context.Context, id uuid.UUID) error       { return nil }

func newTestMiddleware(users *stubUserRepo) *Middleware {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMiddleware(users, NewJWTManager(DefaultJWTConfig("test-secret")), logger)
}

func TestMiddleware_APIKey(t *testing.T) {
	user := &repository.User{ID: uuid.New(), Email: "ada@example.com", APIKey: "key-123"}
	m := newTestMiddleware(&stubUserRepo{byKey: map[string]*repository.User{"key-123": user}})

	var got *UserInfo
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(APIKeyHeader, "key-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.ID != user.ID {
		t.Errorf("wrong user in context: %+v", got)
	}
}

func TestMiddleware_InvalidAPIKey(t *testing.T) {
	m := newTestMiddleware(&stubUserRepo{byKey: map[string]*repository.User{}})

	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_MissingCredentials(t *testing.T) {
	m := newTestMiddleware(&stubUserRepo{})

	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_BearerToken(t *testing.T) {
	userID := uuid.New()
	m := newTestMiddleware(&stubUserRepo{})

	token, err := m.jwt.GenerateToken(userID, "ada@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var got *UserInfo
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.ID != userID {
		t.Errorf("wrong user in context: %+v", got)
	}
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("secret"))
	userID := uuid.New()

	token, err := m.GenerateToken(userID, "ada@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	got, err := claims.GetUserID()
	if err != nil || got != userID {
		t.Errorf("wrong user id %s (%v)", got, err)
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	cfg := DefaultJWTConfig("secret")
	cfg.Expiry = -time.Minute
	m := NewJWTManager(cfg)

	token, err := m.GenerateToken(uuid.New(), "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := m.ValidateToken(token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	// Expired tokens are still refreshable.
	if _, err := m.RefreshToken(token); err != nil {
		t.Fatalf("refresh expired token: %v", err)
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, err := NewJWTManager(DefaultJWTConfig("secret-a")).GenerateToken(uuid.New(), "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := NewJWTManager(DefaultJWTConfig("secret-b")).ValidateToken(token); err == nil {
		t.Fatal("expected validation error with wrong secret")
	}
}
