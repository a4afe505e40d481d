package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
)

type fakeSubscriptionAdmin struct {
	subs   map[uuid.UUID]models.Subscription
	now    time.Time
	grants []string
}

func (f *fakeSubscriptionAdmin) Grant(_ context.Context, userID uuid.UUID, plan string, days int) (models.Subscription, error) {
	if days <= 0 {
		return models.Subscription{}, repository.ErrInvalid
	}
	sub, ok := f.subs[userID]
	if !ok {
		return models.Subscription{}, repository.ErrNotFound
	}
	start := f.now
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(start) {
		start = *sub.CurrentPeriodEnd
	}
	end := start.AddDate(0, 0, days)
	sub.Status = models.SubscriptionStatusActive
	sub.Plan = plan
	sub.CurrentPeriodEnd = &end
	f.subs[userID] = sub
	f.grants = append(f.grants, plan)
	return sub, nil
}

func (f *fakeSubscriptionAdmin) Expire(_ context.Context, userID uuid.UUID) (models.Subscription, error) {
	sub, ok := f.subs[userID]
	if !ok {
		return models.Subscription{}, repository.ErrNotFound
	}
	sub.Status = models.SubscriptionStatusExpired
	f.subs[userID] = sub
	return sub, nil
}

func (f *fakeSubscriptionAdmin) CreatePromo(context.Context, repository.PromoInput) (models.PromoCode, error) {
	return models.PromoCode{}, nil
}

func (f *fakeSubscriptionAdmin) ListPromos(context.Context, int, int) ([]models.PromoCode, error) {
	return nil, nil
}

// adminUserContext собирает запрос администратора к /admin/users/:id.
func adminUserContext(e *echo.Echo, method, body string, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := newAuthedContext(e, method, "/api/v1/admin/users/"+userID.String()+"/subscription", jsonBody(body), uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(userID.String())
	return c, rec
}

// TestAdminGrantAndRevokeSubscription проверяет выдачу подписки и ее отзыв администратором.
func TestAdminGrantAndRevokeSubscription(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	trialEnd := now.Add(-time.Hour)
	userID := uuid.New()
	subs := &fakeSubscriptionAdmin{
		subs: map[uuid.UUID]models.Subscription{userID: {UserID: userID, Status: models.SubscriptionStatusTrial, Plan: "trial", TrialEndsAt: &trialEnd}},
		now:  now,
	}
	publisher := &recordingPublisher{}
	handler := NewAdminHandler(nil, subs, publisher)
	e := newTestEcho()

	c, rec := adminUserContext(e, http.MethodPost, `{"days":30}`, userID)
	if err := handler.GrantSubscription(c); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var granted models.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &granted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if granted.Status != models.SubscriptionStatusActive || granted.Plan != models.PlanPro {
		t.Fatalf("unexpected granted subscription: %+v", granted)
	}
	if !subs.subs[userID].CanPerformAction(now) {
		t.Fatal("granted subscription must open the gate")
	}

	c, rec = adminUserContext(e, http.MethodDelete, "", userID)
	if err := handler.RevokeSubscription(c); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if subs.subs[userID].CanPerformAction(now) {
		t.Fatal("revoked subscription must close the gate")
	}

	events := publisher.types()
	if len(events) != 2 || events[0] != notifications.EventSubscriptionUpdated || events[1] != notifications.EventSubscriptionUpdated {
		t.Fatalf("unexpected events: %v", events)
	}
}

// TestAdminSubscriptionErrors проверяет коды ответа для неизвестного пользователя и неверного запроса.
func TestAdminSubscriptionErrors(t *testing.T) {
	subs := &fakeSubscriptionAdmin{subs: map[uuid.UUID]models.Subscription{}, now: time.Now()}
	handler := NewAdminHandler(nil, subs, nil)
	e := newTestEcho()
	missing := uuid.New()

	c, rec := adminUserContext(e, http.MethodPost, `{"days":30}`, missing)
	if err := handler.GrantSubscription(c); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}

	c, rec = adminUserContext(e, http.MethodPost, `{"days":0}`, missing)
	if err := handler.GrantSubscription(c); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero days, got %d", rec.Code)
	}

	c, rec = adminUserContext(e, http.MethodDelete, "", missing)
	if err := handler.RevokeSubscription(c); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown subscription, got %d", rec.Code)
	}
}
