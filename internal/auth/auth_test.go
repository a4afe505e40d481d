package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TestTokenPairRoundTrip проверяет выпуск и разбор пары токенов.
func TestTokenPairRoundTrip(t *testing.T) {
	manager := NewTokenManager("secret", "kapitallo", time.Minute, time.Hour)
	userID := uuid.New()
	refreshID := uuid.New()

	pair, err := manager.NewTokenPair(userID, refreshID)
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}

	access, err := manager.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if got, err := access.UserID(); err != nil || got != userID {
		t.Fatalf("unexpected user id: %v (%v)", got, err)
	}

	refresh, err := manager.ParseRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if got, err := refresh.SessionID(); err != nil || got != refreshID {
		t.Fatalf("unexpected refresh id: %v (%v)", got, err)
	}

	if _, err := manager.ParseAccessToken(pair.RefreshToken); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected token type mismatch, got %v", err)
	}
	if _, err := NewTokenManager("other", "kapitallo", time.Minute, time.Hour).ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

// TestAccessTokenExpires проверяет срок жизни access-токена по часам менеджера.
func TestAccessTokenExpires(t *testing.T) {
	manager := NewTokenManager("secret", "kapitallo", time.Minute, time.Hour)
	issued := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issued }

	pair, err := manager.NewTokenPair(uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}
	if !pair.AccessExpiresAt.Equal(issued.Add(time.Minute)) {
		t.Fatalf("unexpected access expiry: %s", pair.AccessExpiresAt)
	}

	manager.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := manager.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired access token, got %v", err)
	}
	if _, err := manager.ParseRefreshToken(pair.RefreshToken); err != nil {
		t.Fatalf("refresh token must still be valid: %v", err)
	}
}

// TestValidatePassword проверяет требования к паролю.
func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"short1", false},
		{"onlyletters", false},
		{"1234567890", false},
		{"пароль2024", true},
		{"correct horse 9", true},
		{string(make([]byte, 73)), false},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if (err == nil) != tc.ok {
			t.Fatalf("password %q: unexpected result %v", tc.password, err)
		}
		if err != nil && !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("unexpected error type: %v", err)
		}
	}
}

// TestHashPassword проверяет хэширование и сравнение пароля.
func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := ComparePassword(hash, "secret123"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := ComparePassword(hash, "secret124"); err == nil {
		t.Fatal("expected mismatch")
	}
	if _, err := HashPassword("weak"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password error, got %v", err)
	}
}

// TestTokenHash проверяет сравнение хэша refresh-токена.
func TestTokenHash(t *testing.T) {
	hash := HashToken("token")
	if !CompareTokenHash(hash, "token") {
		t.Fatal("expected hash match")
	}
	if CompareTokenHash(hash, "other") {
		t.Fatal("expected hash mismatch")
	}
}

// TestStreamMiddlewareAcceptsQueryToken проверяет токен в query только для потоков.
func TestStreamMiddlewareAcceptsQueryToken(t *testing.T) {
	manager := NewTokenManager("secret", "kapitallo", time.Minute, time.Hour)
	userID := uuid.New()
	pair, err := manager.NewTokenPair(userID, uuid.New())
	if err != nil {
		t.Fatalf("new pair: %v", err)
	}

	e := echo.New()
	handler := func(c echo.Context) error {
		got, ok := UserIDFromContext(c)
		if !ok || got != userID {
			t.Fatalf("unexpected user id in context: %v", got)
		}
		return c.NoContent(http.StatusNoContent)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream?access_token="+pair.AccessToken, nil)
	rec := httptest.NewRecorder()
	if err := StreamJWTMiddleware(manager)(handler)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("stream middleware: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me?access_token="+pair.AccessToken, nil)
	rec = httptest.NewRecorder()
	err = JWTMiddleware(manager)(handler)(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for query token on regular route, got %v", err)
	}
}
