package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
)

// AdminStore описывает выборки для админки.
type AdminStore interface {
	ListUsers(ctx context.Context, limit, offset int) ([]repository.AdminUser, error)
	CountUsers(ctx context.Context) (int, error)
	ListAIRequests(ctx context.Context, filter repository.AIRequestFilter, limit, offset int, includePayloads bool) ([]repository.AIRequestRecord, error)
	CountAIRequests(ctx context.Context, filter repository.AIRequestFilter) (int, error)
	UsageStats(ctx context.Context, days int) (repository.UsageStats, error)
}

// SubscriptionAdmin управляет подписками и промокодами.
type SubscriptionAdmin interface {
	Grant(ctx context.Context, userID uuid.UUID, plan string, days int) (models.Subscription, error)
	Expire(ctx context.Context, userID uuid.UUID) (models.Subscription, error)
	CreatePromo(ctx context.Context, input repository.PromoInput) (models.PromoCode, error)
	ListPromos(ctx context.Context, limit, offset int) ([]models.PromoCode, error)
}

// UserLookup находит пользователя по id.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type AdminHandler struct {
	Repo          AdminStore
	Subscriptions SubscriptionAdmin
	Publisher     notifications.Publisher
}

// NewAdminHandler создает обработчик админских эндпоинтов.
func NewAdminHandler(repo AdminStore, subscriptions SubscriptionAdmin, publisher notifications.Publisher) *AdminHandler {
	return &AdminHandler{Repo: repo, Subscriptions: subscriptions, Publisher: publisher}
}

type AdminUserResponse struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	Name               *string   `json:"name,omitempty"`
	SubscriptionStatus *string   `json:"subscription_status,omitempty"`
	CurrentPeriodEnd   *string   `json:"current_period_end,omitempty"`
	CreatedAt          string    `json:"created_at"`
	UpdatedAt          string    `json:"updated_at"`
}

type AdminUsersResponse struct {
	Total int                 `json:"total"`
	Users []AdminUserResponse `json:"users"`
}

type AdminAIRequestResponse struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	RequestType     string          `json:"request_type"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	Success         bool            `json:"success"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	LatencyMs       int             `json:"latency_ms"`
	CreatedAt       string          `json:"created_at"`
	Prompt          *string         `json:"prompt,omitempty"`
	RequestPayload  json.RawMessage `json:"request_payload,omitempty"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	RawResponse     *string         `json:"raw_response,omitempty"`
}

type AdminAIRequestsResponse struct {
	Total    int                      `json:"total"`
	Requests []AdminAIRequestResponse `json:"requests"`
}

type AdminUsageDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AdminUsageResponse struct {
	Users               int             `json:"users"`
	Transactions        int             `json:"transactions"`
	ActiveSubscriptions int             `json:"active_subscriptions"`
	TrialSubscriptions  int             `json:"trial_subscriptions"`
	AIRequests          int             `json:"ai_requests"`
	AISuccess           int             `json:"ai_success"`
	AIFail              int             `json:"ai_fail"`
	AIAvgLatencyMs      int             `json:"ai_avg_latency_ms"`
	AIRequestsByDay     []AdminUsageDay `json:"ai_requests_by_day"`
}

type GrantRequest struct {
	Plan string `json:"plan" validate:"omitempty,oneof=pro trial"`
	Days int    `json:"days" validate:"required,min=1,max=3660"`
}

type PromoCreateRequest struct {
	Code           string `json:"code" validate:"required,min=3,max=64,alphanum"`
	Days           int    `json:"days" validate:"required,min=1,max=3660"`
	MaxRedemptions int    `json:"max_redemptions" validate:"required,min=1"`
	ExpiresAt      string `json:"expires_at"`
}

// ListUsers возвращает список пользователей для админки.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	limit, offset, err := parsePagination(c, 50, 200)
	if err != nil {
		return badRequest(c, err.Error())
	}

	users, err := h.Repo.ListUsers(c.Request().Context(), limit, offset)
	if err != nil {
		return serverError(c)
	}

	total, err := h.Repo.CountUsers(c.Request().Context())
	if err != nil {
		return serverError(c)
	}

	response := make([]AdminUserResponse, 0, len(users))
	for _, user := range users {
		item := AdminUserResponse{
			ID:                 user.ID,
			Email:              user.Email,
			Name:               user.Name,
			SubscriptionStatus: user.SubscriptionStatus,
			CreatedAt:          user.CreatedAt.Format(timeLayout),
			UpdatedAt:          user.UpdatedAt.Format(timeLayout),
		}
		if user.CurrentPeriodEnd != nil {
			formatted := user.CurrentPeriodEnd.Format(timeLayout)
			item.CurrentPeriodEnd = &formatted
		}
		response = append(response, item)
	}

	return c.JSON(http.StatusOK, AdminUsersResponse{
		Total: total,
		Users: response,
	})
}

// ListAIRequests возвращает логи AI-запросов с фильтрами.
func (h *AdminHandler) ListAIRequests(c echo.Context) error {
	limit, offset, err := parsePagination(c, 50, 200)
	if err != nil {
		return badRequest(c, err.Error())
	}

	filter := repository.AIRequestFilter{}
	if raw := strings.TrimSpace(c.QueryParam("user_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		filter.UserID = &parsed
	}

	if raw := strings.TrimSpace(c.QueryParam("success")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "invalid success")
		}
		filter.Success = &parsed
	}

	if raw := strings.TrimSpace(c.QueryParam("request_type")); raw != "" {
		filter.RequestType = &raw
	}

	includePayloads := false
	if raw := strings.TrimSpace(c.QueryParam("include_payloads")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "invalid include_payloads")
		}
		includePayloads = parsed
	}

	requests, err := h.Repo.ListAIRequests(c.Request().Context(), filter, limit, offset, includePayloads)
	if err != nil {
		return serverError(c)
	}

	total, err := h.Repo.CountAIRequests(c.Request().Context(), filter)
	if err != nil {
		return serverError(c)
	}

	response := make([]AdminAIRequestResponse, 0, len(requests))
	for _, req := range requests {
		item := AdminAIRequestResponse{
			ID:           req.ID,
			UserID:       req.UserID,
			RequestType:  req.RequestType,
			Provider:     req.Provider,
			Model:        req.Model,
			Success:      req.Success,
			ErrorMessage: req.ErrorMessage,
			LatencyMs:    req.LatencyMs,
			CreatedAt:    req.CreatedAt.Format(timeLayout),
		}

		if includePayloads {
			item.Prompt = req.Prompt
			if len(req.RequestPayload) > 0 {
				item.RequestPayload = json.RawMessage(req.RequestPayload)
			}
			if len(req.ResponsePayload) > 0 {
				item.ResponsePayload = json.RawMessage(req.ResponsePayload)
			}
			item.RawResponse = req.RawResponse
		}
		response = append(response, item)
	}

	return c.JSON(http.StatusOK, AdminAIRequestsResponse{
		Total:    total,
		Requests: response,
	})
}

// Usage возвращает агрегированную статистику использования.
func (h *AdminHandler) Usage(c echo.Context) error {
	days := 7
	if raw := strings.TrimSpace(c.QueryParam("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return badRequest(c, "invalid days")
		}
		if parsed > 30 {
			parsed = 30
		}
		days = parsed
	}

	stats, err := h.Repo.UsageStats(c.Request().Context(), days)
	if err != nil {
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid days")
		}
		return serverError(c)
	}

	daysResponse := make([]AdminUsageDay, 0, len(stats.AIRequestsByDay))
	for _, day := range stats.AIRequestsByDay {
		daysResponse = append(daysResponse, AdminUsageDay{
			Date:  day.Day.Format("2006-01-02"),
			Count: day.Count,
		})
	}

	return c.JSON(http.StatusOK, AdminUsageResponse{
		Users:               stats.Users,
		Transactions:        stats.Transactions,
		ActiveSubscriptions: stats.ActiveSubscriptions,
		TrialSubscriptions:  stats.TrialSubscriptions,
		AIRequests:          stats.AIRequests,
		AISuccess:           stats.AISuccess,
		AIFail:              stats.AIFail,
		AIAvgLatencyMs:      stats.AIAvgLatencyMs,
		AIRequestsByDay:     daysResponse,
	})
}

// GrantSubscription продлевает подписку пользователя вручную.
func (h *AdminHandler) GrantSubscription(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	var req GrantRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}
	if req.Plan == "" {
		req.Plan = models.PlanPro
	}

	subscription, err := h.Subscriptions.Grant(c.Request().Context(), userID, req.Plan, req.Days)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return notFound(c, "user not found")
		case errors.Is(err, repository.ErrInvalid):
			return badRequest(c, "invalid grant")
		default:
			return serverError(c)
		}
	}

	if adminID, ok := auth.UserIDFromContext(c); ok {
		slog.Info("subscription granted", "admin_id", adminID.String(), "user_id", userID.String(), "days", req.Days)
	}
	publishEvent(h.Publisher, userID, notifications.EventSubscriptionUpdated, subscription)
	return c.JSON(http.StatusOK, subscription)
}

// RevokeSubscription переводит подписку пользователя в expired.
func (h *AdminHandler) RevokeSubscription(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	subscription, err := h.Subscriptions.Expire(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "subscription not found")
		}
		return serverError(c)
	}

	if adminID, ok := auth.UserIDFromContext(c); ok {
		slog.Info("subscription revoked", "admin_id", adminID.String(), "user_id", userID.String())
	}
	publishEvent(h.Publisher, userID, notifications.EventSubscriptionUpdated, subscription)
	return c.JSON(http.StatusOK, subscription)
}

// CreatePromo создает промокод.
func (h *AdminHandler) CreatePromo(c echo.Context) error {
	var req PromoCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	input := repository.PromoInput{
		Code:           req.Code,
		Days:           req.Days,
		MaxRedemptions: req.MaxRedemptions,
	}
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		expiresAt, err := time.Parse(timeLayout, raw)
		if err != nil {
			return badRequest(c, "invalid expires_at")
		}
		input.ExpiresAt = &expiresAt
	}

	promo, err := h.Subscriptions.CreatePromo(c.Request().Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return conflict(c, "promo code already exists")
		case errors.Is(err, repository.ErrInvalid):
			return badRequest(c, "invalid promo code")
		default:
			return serverError(c)
		}
	}

	return c.JSON(http.StatusCreated, promo)
}

// ListPromos возвращает промокоды.
func (h *AdminHandler) ListPromos(c echo.Context) error {
	limit, offset, err := parsePagination(c, 50, 200)
	if err != nil {
		return badRequest(c, err.Error())
	}

	promos, err := h.Subscriptions.ListPromos(c.Request().Context(), limit, offset)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"promos": promos})
}

// AdminMiddleware ограничивает доступ к админским роутам по email.
func AdminMiddleware(users UserLookup, emails []string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		trimmed := strings.ToLower(strings.TrimSpace(email))
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := auth.UserIDFromContext(c)
			if !ok {
				return unauthorized(c)
			}

			if len(allowed) == 0 {
				return forbidden(c)
			}

			user, err := users.GetByID(c.Request().Context(), userID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return forbidden(c)
				}
				return serverError(c)
			}

			email := strings.ToLower(strings.TrimSpace(user.Email))
			if _, ok := allowed[email]; !ok {
				return forbidden(c)
			}

			return next(c)
		}
	}
}

func parsePagination(c echo.Context, defaultLimit, maxLimit int) (int, int, error) {
	limit := defaultLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if parsed > maxLimit {
			parsed = maxLimit
		}
		limit = parsed
	}

	offset := 0
	if raw := strings.TrimSpace(c.QueryParam("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = parsed
	}

	return limit, offset, nil
}
