package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/commit"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
	"example.com/kapitallo/backend/internal/voice"
)

const (
	msgNoAudio          = "Нет аудиозаписи"
	msgTranscription    = "Не удалось распознать запись, попробуйте еще раз"
	msgExtraction       = "Не удалось обработать запись"
	msgRateLimited      = "Слишком много запросов, попробуйте позже"
	msgPaymentRequired  = "Сервис распознавания временно недоступен"
	msgMissingCategory  = "Не у всех операций есть категория. Создайте недостающие категории"
	msgSaveFailed       = "Не удалось сохранить операции"
	msgNothingToConfirm = "Нет операций для сохранения"
)

type VoiceParser interface {
	Parse(ctx context.Context, input voice.Input) (voice.Result, error)
}

type VoiceCommitter interface {
	Commit(ctx context.Context, cc commit.Context, txs []models.ParsedTransaction) ([]models.Transaction, error)
}

type CategoryLister interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.Category, error)
}

type AIRequestLogger interface {
	LogRequest(ctx context.Context, log repository.AIRequestLog) error
}

type VoiceHandler struct {
	Parser     VoiceParser
	Committer  VoiceCommitter
	Categories CategoryLister
	Profiles   ProfileReader
	AILog      AIRequestLogger
	Notifier   notifications.Publisher
	Provider   string
	Model      string

	// WriteTimeout покрывает распознавание и извлечение вместе.
	WriteTimeout time.Duration
}

// NewVoiceHandler создает обработчик голосового ввода.
func NewVoiceHandler(parser VoiceParser, committer VoiceCommitter, categories CategoryLister, profiles ProfileReader, aiLog AIRequestLogger, notifier notifications.Publisher, provider, model string) *VoiceHandler {
	return &VoiceHandler{
		Parser:     parser,
		Committer:  committer,
		Categories: categories,
		Profiles:   profiles,
		AILog:      aiLog,
		Notifier:   notifier,
		Provider:   provider,
		Model:      model,
	}
}

type VoiceParseRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mime_type"`
}

type VoiceConfirmRequest struct {
	Transactions []models.ParsedTransaction `json:"transactions" validate:"required,min=1,dive"`
}

type VoiceConfirmResponse struct {
	Transactions []models.Transaction `json:"transactions"`
}

type missingCategoriesResponse struct {
	Error    string   `json:"error"`
	Redirect string   `json:"redirect"`
	Indexes  []int    `json:"indexes,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Parse распознает голосовую заметку и возвращает операции на подтверждение.
// Аудио принимается JSON-полем audio (base64 или data URL) или файлом multipart-поля audio.
func (h *VoiceHandler) Parse(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	req, err := bindVoiceAudio(c)
	if err != nil {
		return badRequest(c, msgNoAudio)
	}
	if strings.TrimSpace(req.Audio) == "" {
		return badRequest(c, msgNoAudio)
	}

	extendWriteDeadline(c, h.WriteTimeout)

	ctx := c.Request().Context()
	rows, err := h.Categories.List(ctx, userID)
	if err != nil {
		return serverError(c)
	}

	started := time.Now()
	result, err := h.Parser.Parse(ctx, voice.Input{
		AudioBase64: req.Audio,
		MimeType:    req.MimeType,
		Context: voice.Context{
			UserID:     userID,
			Currency:   h.currency(ctx, userID),
			Categories: rows,
		},
	})
	if errors.Is(err, voice.ErrInvalidInput) {
		return badRequest(c, msgNoAudio)
	}

	h.logParse(ctx, userID, req.MimeType, result, err, time.Since(started))

	if err != nil {
		return voiceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Confirm сохраняет подтвержденные операции целиком или не сохраняет ни одной.
func (h *VoiceHandler) Confirm(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req VoiceConfirmRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if len(req.Transactions) == 0 {
		return badRequest(c, msgNothingToConfirm)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	ctx := c.Request().Context()
	rows, err := h.Categories.List(ctx, userID)
	if err != nil {
		return serverError(c)
	}

	created, err := h.Committer.Commit(ctx, commit.Context{
		UserID:     userID,
		Currency:   h.currency(ctx, userID),
		Categories: rows,
	}, req.Transactions)
	if err != nil {
		var missing *commit.MissingCategoriesError
		switch {
		case errors.As(err, &missing):
			return c.JSON(http.StatusUnprocessableEntity, missingCategoriesResponse{
				Error:    msgMissingCategory,
				Redirect: "categories",
				Indexes:  missing.Indexes,
				Reasons:  missing.Reasons,
			})
		case errors.Is(err, repository.ErrCategoryMissing):
			return c.JSON(http.StatusUnprocessableEntity, missingCategoriesResponse{
				Error:    msgMissingCategory,
				Redirect: "categories",
			})
		case errors.Is(err, commit.ErrEmptyBatch):
			return badRequest(c, msgNothingToConfirm)
		default:
			slog.Error("voice commit failed", "user_id", userID.String(), "count", len(req.Transactions), "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": msgSaveFailed})
		}
	}

	ids := make([]uuid.UUID, 0, len(created))
	for _, row := range created {
		ids = append(ids, row.ID)
	}
	publishTransactionsCreated(h.Notifier, userID, ids, "voice")
	slog.Info("voice transactions committed", "user_id", userID.String(), "count", len(created))

	return c.JSON(http.StatusCreated, VoiceConfirmResponse{Transactions: created})
}

func (h *VoiceHandler) currency(ctx context.Context, userID uuid.UUID) string {
	if h.Profiles != nil {
		if profile, err := h.Profiles.Get(ctx, userID); err == nil && profile.Currency != "" {
			return profile.Currency
		}
	}
	return models.DefaultCurrency
}

func (h *VoiceHandler) logParse(ctx context.Context, userID uuid.UUID, mimeType string, result voice.Result, err error, latency time.Duration) {
	if h.AILog == nil {
		return
	}

	requestPayload, _ := json.Marshal(map[string]string{
		"mime_type": mimeType,
		"audio_uri": result.AudioURI,
	})

	var responsePayload []byte
	if err == nil {
		responsePayload, _ = json.Marshal(result)
	}

	log := repository.AIRequestLog{
		UserID:          userID,
		RequestType:     repository.RequestTypeVoiceParse,
		Provider:        h.Provider,
		Model:           h.Model,
		Prompt:          result.Prompt,
		RequestPayload:  requestPayload,
		ResponsePayload: responsePayload,
		RawResponse:     string(result.Raw),
		Success:         err == nil,
		Latency:         latency,
	}
	if err != nil {
		message := err.Error()
		log.ErrorMessage = &message
	}

	if logErr := h.AILog.LogRequest(ctx, log); logErr != nil {
		slog.Warn("ai request log failed", "user_id", userID.String(), "error", logErr)
	}
}

func bindVoiceAudio(c echo.Context) (VoiceParseRequest, error) {
	var req VoiceParseRequest

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		file, err := c.FormFile("audio")
		if err != nil {
			return req, err
		}
		src, err := file.Open()
		if err != nil {
			return req, err
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			return req, err
		}

		req.Audio = base64.StdEncoding.EncodeToString(data)
		req.MimeType = file.Header.Get(echo.HeaderContentType)
		if value := strings.TrimSpace(c.FormValue("mime_type")); value != "" {
			req.MimeType = value
		}
		return req, nil
	}

	if err := c.Bind(&req); err != nil {
		return req, err
	}
	return req, nil
}

func voiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return tooManyRequests(c, msgRateLimited)
	case errors.Is(err, ai.ErrPaymentRequired):
		return paymentRequired(c, msgPaymentRequired)
	case errors.Is(err, voice.ErrTranscription):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": msgTranscription})
	case errors.Is(err, voice.ErrExtraction):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": msgExtraction})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": msgExtraction})
	default:
		return serverError(c)
	}
}
