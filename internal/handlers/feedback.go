package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/auth"
)

type FeedbackStore interface {
	Create(ctx context.Context, userID uuid.UUID, message string) (uuid.UUID, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
}

type FeedbackHandler struct {
	Feedback FeedbackStore
	Relay    Notifier
}

// NewFeedbackHandler создает обработчик обратной связи.
func NewFeedbackHandler(store FeedbackStore, relay Notifier) *FeedbackHandler {
	return &FeedbackHandler{Feedback: store, Relay: relay}
}

type FeedbackRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// Create сохраняет отзыв и пересылает его в Telegram, если бот настроен.
func (h *FeedbackHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	ctx := c.Request().Context()
	id, err := h.Feedback.Create(ctx, userID, req.Message)
	if err != nil {
		return serverError(c)
	}

	delivered := false
	if h.Relay != nil && h.Relay.Enabled() {
		text := fmt.Sprintf("Отзыв от %s:\n%s", userID, req.Message)
		if err := h.Relay.Notify(ctx, text); err != nil {
			slog.Warn("feedback relay failed", "feedback_id", id.String(), "error", err)
		} else if err := h.Feedback.MarkDelivered(ctx, id); err != nil {
			slog.Warn("feedback delivery not recorded", "feedback_id", id.String(), "error", err)
		} else {
			delivered = true
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":        id,
		"delivered": delivered,
	})
}
