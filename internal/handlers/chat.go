package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/chat"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/repository"
)

const msgChatFailed = "Ассистент сейчас недоступен, попробуйте позже"

type ChatReplier interface {
	Reply(ctx context.Context, cc chat.Context, history []ai.Message, onDelta func(string) error) (string, error)
}

type ChatHandler struct {
	Assistant     ChatReplier
	Profiles      ProfileReader
	AILog         AIRequestLogger
	Provider      string
	Model         string
	StreamTimeout time.Duration
}

// NewChatHandler создает обработчик чата с ассистентом.
func NewChatHandler(assistant ChatReplier, profiles ProfileReader, aiLog AIRequestLogger, provider, model string, streamTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		Assistant:     assistant,
		Profiles:      profiles,
		AILog:         aiLog,
		Provider:      provider,
		Model:         model,
		StreamTimeout: streamTimeout,
	}
}

type ChatMessageRequest struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

type ChatRequest struct {
	Messages []ChatMessageRequest `json:"messages" validate:"required,min=1,max=100,dive"`
}

type chatDelta struct {
	Content string `json:"content"`
}

type chatChoice struct {
	Delta chatDelta `json:"delta"`
}

type chatFrame struct {
	Choices []chatChoice `json:"choices,omitempty"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatError struct {
	Message string `json:"message"`
}

// Stream отвечает потоком `data: {"choices":[{"delta":{"content":...}}]}`, завершая его `data: [DONE]`.
// Пока не отправлен первый фрагмент, ошибки возвращаются обычным JSON со статусом.
func (h *ChatHandler) Stream(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	history := make([]ai.Message, 0, len(req.Messages))
	for _, message := range req.Messages {
		history = append(history, ai.Message{Role: message.Role, Content: message.Content})
	}

	ctx := c.Request().Context()
	profile := models.Profile{UserID: userID, Currency: models.DefaultCurrency}
	if h.Profiles != nil {
		if loaded, err := h.Profiles.Get(ctx, userID); err == nil {
			profile = loaded
		}
	}

	if h.StreamTimeout > 0 {
		extendWriteDeadline(c, h.StreamTimeout+5*time.Second)
	}

	started := time.Now()
	streaming := false
	reply, err := h.Assistant.Reply(ctx, chat.Context{UserID: userID, Profile: profile}, history, func(delta string) error {
		if !streaming {
			setSSEHeaders(c)
			c.Response().WriteHeader(http.StatusOK)
			streaming = true
		}
		return writeChatFrame(c, chatFrame{Choices: []chatChoice{{Delta: chatDelta{Content: delta}}}})
	})

	h.logChat(ctx, userID, len(history), reply, err, time.Since(started))

	if err != nil && !streaming {
		switch {
		case errors.Is(err, chat.ErrInvalidHistory):
			return badRequest(c, "last message must come from the user")
		case errors.Is(err, ai.ErrRateLimited):
			return tooManyRequests(c, msgRateLimited)
		case errors.Is(err, ai.ErrPaymentRequired):
			return paymentRequired(c, msgPaymentRequired)
		default:
			return c.JSON(http.StatusBadGateway, map[string]string{"error": msgChatFailed})
		}
	}

	if !streaming {
		setSSEHeaders(c)
		c.Response().WriteHeader(http.StatusOK)
	}

	if err != nil {
		_ = writeChatFrame(c, chatFrame{Error: &chatError{Message: msgChatFailed}})
	}

	if _, writeErr := c.Response().Write([]byte("data: [DONE]\n\n")); writeErr != nil {
		return nil
	}
	c.Response().Flush()
	return nil
}

func writeChatFrame(c echo.Context, frame chatFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

func (h *ChatHandler) logChat(ctx context.Context, userID uuid.UUID, messages int, reply string, err error, latency time.Duration) {
	if h.AILog == nil {
		return
	}

	requestPayload, _ := json.Marshal(map[string]int{"messages": messages})
	log := repository.AIRequestLog{
		UserID:         userID,
		RequestType:    repository.RequestTypeChat,
		Provider:       h.Provider,
		Model:          h.Model,
		RequestPayload: requestPayload,
		RawResponse:    reply,
		Success:        err == nil,
		Latency:        latency,
	}
	if err != nil {
		message := err.Error()
		log.ErrorMessage = &message
	}

	if logErr := h.AILog.LogRequest(ctx, log); logErr != nil {
		slog.Warn("ai request log failed", "user_id", userID.String(), "error", logErr)
	}
}
