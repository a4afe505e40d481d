package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/repository"
)

type fakeUsers struct {
	users map[uuid.UUID]models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[uuid.UUID]models.User{}}
}

func (f *fakeUsers) Create(_ context.Context, email, passwordHash string, name *string, _ int) (models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return models.User{}, repository.ErrConflict
		}
	}
	user := models.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, Name: name}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

// fakeRefreshTokens повторяет семантику RefreshTokenRepository в памяти.
type fakeRefreshTokens struct {
	tokens map[uuid.UUID]models.RefreshToken
}

func newFakeRefreshTokens() *fakeRefreshTokens {
	return &fakeRefreshTokens{tokens: map[uuid.UUID]models.RefreshToken{}}
}

func (f *fakeRefreshTokens) Create(_ context.Context, token models.RefreshToken) error {
	f.tokens[token.ID] = token
	return nil
}

func (f *fakeRefreshTokens) GetByID(_ context.Context, id uuid.UUID) (models.RefreshToken, error) {
	token, ok := f.tokens[id]
	if !ok {
		return models.RefreshToken{}, repository.ErrNotFound
	}
	return token, nil
}

func (f *fakeRefreshTokens) Revoke(_ context.Context, id uuid.UUID, replacedBy *uuid.UUID) error {
	token, ok := f.tokens[id]
	if !ok || token.RevokedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now()
	token.RevokedAt = &now
	token.ReplacedBy = replacedBy
	f.tokens[id] = token
	return nil
}

func (f *fakeRefreshTokens) Rotate(ctx context.Context, oldID uuid.UUID, newToken models.RefreshToken) error {
	if old, ok := f.tokens[oldID]; !ok || old.RevokedAt != nil {
		return repository.ErrNotFound
	}
	f.tokens[newToken.ID] = newToken
	return f.Revoke(ctx, oldID, &newToken.ID)
}

func (f *fakeRefreshTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	var revoked int64
	now := time.Now()
	for id, token := range f.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			token.RevokedAt = &now
			f.tokens[id] = token
			revoked++
		}
	}
	return revoked, nil
}

func (f *fakeRefreshTokens) active(userID uuid.UUID) int {
	count := 0
	for _, token := range f.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			count++
		}
	}
	return count
}

func newTestAuthHandler() (*AuthHandler, *fakeUsers, *fakeRefreshTokens) {
	users := newFakeUsers()
	tokens := newFakeRefreshTokens()
	manager := auth.NewTokenManager("secret", "kapitallo", time.Minute, time.Hour)
	return NewAuthHandler(users, tokens, manager, 7), users, tokens
}

func decodeAuthResponse(t *testing.T, body []byte) AuthResponse {
	t.Helper()
	var resp AuthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return resp
}

// TestRegisterRejectsWeakPassword проверяет, что слабый пароль не создает пользователя.
func TestRegisterRejectsWeakPassword(t *testing.T) {
	e := newTestEcho()
	handler, users, _ := newTestAuthHandler()

	c, rec := newAuthedContext(e, http.MethodPost, "/api/v1/auth/register", jsonBody(`{"email":"a@example.com","password":"onlyletters"}`), uuid.Nil)
	if err := handler.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(users.users) != 0 {
		t.Fatalf("user must not be created, got %d", len(users.users))
	}
}

// TestRefreshReuseRevokesAllSessions проверяет ротацию и отзыв всех сессий
// при повторном предъявлении уже замененного refresh-токена.
func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	e := newTestEcho()
	handler, _, tokens := newTestAuthHandler()

	c, rec := newAuthedContext(e, http.MethodPost, "/api/v1/auth/register", jsonBody(`{"email":"A@example.com","password":"secret123"}`), uuid.Nil)
	if err := handler.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	registered := decodeAuthResponse(t, rec.Body.Bytes())
	if registered.User.Email != "a@example.com" {
		t.Fatalf("email must be normalized, got %q", registered.User.Email)
	}
	userID := registered.User.ID

	refreshBody := `{"refresh_token":"` + registered.RefreshToken + `"}`
	c, rec = newAuthedContext(e, http.MethodPost, "/api/v1/auth/refresh", jsonBody(refreshBody), uuid.Nil)
	if err := handler.Refresh(c); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rotated := decodeAuthResponse(t, rec.Body.Bytes())
	if rotated.RefreshToken == registered.RefreshToken {
		t.Fatal("refresh token must rotate")
	}
	if got := tokens.active(userID); got != 1 {
		t.Fatalf("expected one active session after rotation, got %d", got)
	}

	c, rec = newAuthedContext(e, http.MethodPost, "/api/v1/auth/refresh", jsonBody(refreshBody), uuid.Nil)
	if err := handler.Refresh(c); err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", rec.Code)
	}
	if got := tokens.active(userID); got != 0 {
		t.Fatalf("reuse must revoke every session, %d still active", got)
	}

	c, rec = newAuthedContext(e, http.MethodPost, "/api/v1/auth/refresh", jsonBody(`{"refresh_token":"`+rotated.RefreshToken+`"}`), uuid.Nil)
	if err := handler.Refresh(c); err != nil {
		t.Fatalf("refresh rotated: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("rotated token must be revoked too, got %d", rec.Code)
	}
}
