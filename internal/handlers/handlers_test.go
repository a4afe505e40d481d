package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
)

type testValidator struct {
	validate *validator.Validate
}

func (v testValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	v := validator.New()
	v.RegisterCustomTypeFunc(models.DecimalValue, decimal.Decimal{})
	e.Validator = testValidator{validate: v}
	return e
}

// newAuthedContext собирает контекст запроса с user_id, как после JWTMiddleware.
func newAuthedContext(e *echo.Echo, method, target string, body io.Reader, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != uuid.Nil {
		c.Set(auth.ContextUserIDKey, userID)
	}
	return c, rec
}

func jsonBody(value string) io.Reader {
	return strings.NewReader(value)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (p *recordingPublisher) Publish(_ uuid.UUID, event notifications.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type fakeProfiles struct {
	profile models.Profile
	err     error
}

func (f fakeProfiles) Get(context.Context, uuid.UUID) (models.Profile, error) {
	return f.profile, f.err
}

type fakeAILog struct {
	mu   sync.Mutex
	logs []repository.AIRequestLog
}

func (f *fakeAILog) LogRequest(_ context.Context, log repository.AIRequestLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

type fakeNotifier struct {
	enabled bool
	err     error
	sent    []string
}

func (f *fakeNotifier) Enabled() bool {
	return f.enabled
}

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}
