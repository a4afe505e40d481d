package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/repository"
)

// ProfileStore описывает хранилище профилей.
type ProfileStore interface {
	ProfileReader
	Update(ctx context.Context, userID uuid.UUID, input repository.ProfileUpdate) (models.Profile, error)
}

type ProfileHandler struct {
	Profiles ProfileStore
}

// NewProfileHandler создает обработчик профиля.
func NewProfileHandler(profiles ProfileStore) *ProfileHandler {
	return &ProfileHandler{Profiles: profiles}
}

type ProfileRequest struct {
	DisplayName   *string          `json:"display_name" validate:"omitempty,max=100"`
	Currency      *string          `json:"currency" validate:"omitempty,len=3,alpha"`
	FinancialGoal *string          `json:"financial_goal" validate:"omitempty,max=500"`
	MonthlyIncome *decimal.Decimal `json:"monthly_income"`
	AdviceTone    *string          `json:"advice_tone" validate:"omitempty,oneof=friendly strict neutral"`
}

// Get возвращает профиль текущего пользователя.
func (h *ProfileHandler) Get(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	profile, err := h.Profiles.Get(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "profile not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, profile)
}

// Update меняет переданные поля профиля.
func (h *ProfileHandler) Update(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ProfileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	if req.MonthlyIncome != nil && req.MonthlyIncome.IsNegative() {
		return badRequest(c, "monthly_income must not be negative")
	}

	input := repository.ProfileUpdate{
		DisplayName:   trimOptional(req.DisplayName),
		FinancialGoal: trimOptional(req.FinancialGoal),
		MonthlyIncome: req.MonthlyIncome,
		AdviceTone:    trimOptional(req.AdviceTone),
	}
	if currency := trimOptional(req.Currency); currency != nil {
		upper := strings.ToUpper(*currency)
		input.Currency = &upper
	}

	profile, err := h.Profiles.Update(c.Request().Context(), userID, input)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "profile not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, profile)
}
