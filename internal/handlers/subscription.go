package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/billing"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
)

const (
	msgSubscriptionRequired = "Оформите подписку, чтобы пользоваться голосовым вводом и ассистентом"
	msgPromoInvalid         = "Промокод недействителен или истек"
	msgPromoUsed            = "Промокод уже использован"
	maxWebhookBytes         = 64 << 10
)

// SubscriptionReader отдает подписку пользователя.
type SubscriptionReader interface {
	Get(ctx context.Context, userID uuid.UUID) (models.Subscription, error)
}

type SubscriptionStore interface {
	SubscriptionReader
	RedeemPromo(ctx context.Context, userID uuid.UUID, code string) (models.Subscription, error)
	ApplyPaymentEvent(ctx context.Context, event billing.Event) (models.Subscription, bool, error)
}

// Notifier отправляет служебные сообщения администраторам.
type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, text string) error
}

type SubscriptionHandler struct {
	Subscriptions SubscriptionStore
	Publisher     notifications.Publisher
	Alerts        Notifier
	WebhookSecret string
}

// NewSubscriptionHandler создает обработчик подписок.
func NewSubscriptionHandler(store SubscriptionStore, publisher notifications.Publisher, alerts Notifier, webhookSecret string) *SubscriptionHandler {
	return &SubscriptionHandler{
		Subscriptions: store,
		Publisher:     publisher,
		Alerts:        alerts,
		WebhookSecret: webhookSecret,
	}
}

type PromoRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type subscriptionRequiredResponse struct {
	Error        string               `json:"error"`
	Redirect     string               `json:"redirect"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// RequireActiveSubscription пропускает запрос, только если у пользователя активная подписка или пробный период.
func RequireActiveSubscription(subscriptions SubscriptionReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := auth.UserIDFromContext(c)
			if !ok {
				return unauthorized(c)
			}

			subscription, err := subscriptions.Get(c.Request().Context(), userID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return c.JSON(http.StatusPaymentRequired, subscriptionRequiredResponse{
						Error:    msgSubscriptionRequired,
						Redirect: "subscription",
					})
				}
				return serverError(c)
			}

			if !subscription.CanPerformAction(time.Now()) {
				return c.JSON(http.StatusPaymentRequired, subscriptionRequiredResponse{
					Error:        msgSubscriptionRequired,
					Redirect:     "subscription",
					Subscription: &subscription,
				})
			}

			return next(c)
		}
	}
}

// Get возвращает подписку текущего пользователя.
func (h *SubscriptionHandler) Get(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	subscription, err := h.Subscriptions.Get(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "subscription not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, subscription)
}

// RedeemPromo активирует промокод.
func (h *SubscriptionHandler) RedeemPromo(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req PromoRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	subscription, err := h.Subscriptions.RedeemPromo(c.Request().Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPromoInvalid):
			return badRequest(c, msgPromoInvalid)
		case errors.Is(err, repository.ErrConflict):
			return conflict(c, msgPromoUsed)
		default:
			return serverError(c)
		}
	}

	slog.Info("promo code redeemed", "user_id", userID.String(), "code", req.Code)
	publishEvent(h.Publisher, userID, notifications.EventSubscriptionUpdated, subscription)
	return c.JSON(http.StatusOK, subscription)
}

// PaymentWebhook принимает подписанное уведомление платежного провайдера.
// Повторная доставка того же события отвечает 200 без изменений.
func (h *SubscriptionHandler) PaymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return badRequest(c, "invalid payload")
	}

	if err := billing.VerifySignature(h.WebhookSecret, body, c.Request().Header.Get(billing.SignatureHeader)); err != nil {
		slog.Warn("payment webhook rejected", "error", err)
		return unauthorized(c)
	}

	event, err := billing.ParseEvent(body)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	subscription, applied, err := h.Subscriptions.ApplyPaymentEvent(ctx, event)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "user not found")
		}
		slog.Error("payment event failed", "event_id", event.ID, "error", err)
		return serverError(c)
	}

	if !applied {
		return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	}

	slog.Info("payment event applied", "event_id", event.ID, "type", event.Type, "user_id", event.UserID.String())
	publishEvent(h.Publisher, event.UserID, notifications.EventSubscriptionUpdated, subscription)

	if event.Type == billing.EventPaymentSucceeded && h.Alerts != nil && h.Alerts.Enabled() {
		text := fmt.Sprintf("Оплата %s %s: пользователь %s, тариф %s на %d дн.",
			event.Amount.StringFixed(2), event.Currency, event.UserID, event.Plan, event.Days)
		if err := h.Alerts.Notify(ctx, text); err != nil {
			slog.Warn("payment alert failed", "event_id", event.ID, "error", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "applied"})
}
