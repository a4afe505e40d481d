package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
)

// TransactionStore описывает хранилище операций.
type TransactionStore interface {
	List(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	Count(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) (int, error)
	Create(ctx context.Context, userID uuid.UUID, row models.Transaction) (models.Transaction, error)
	Update(ctx context.Context, userID, id uuid.UUID, row models.Transaction) (models.Transaction, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ProfileReader отдает профиль с базовой валютой пользователя.
type ProfileReader interface {
	Get(ctx context.Context, userID uuid.UUID) (models.Profile, error)
}

type TransactionHandler struct {
	Transactions TransactionStore
	Profiles     ProfileReader
	Notifier     notifications.Publisher
}

// NewTransactionHandler создает обработчик операций.
func NewTransactionHandler(store TransactionStore, profiles ProfileReader, notifier notifications.Publisher) *TransactionHandler {
	return &TransactionHandler{
		Transactions: store,
		Profiles:     profiles,
		Notifier:     notifier,
	}
}

type TransactionRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	CategoryID  *string         `json:"category_id"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	Date        string          `json:"date"`
	Description *string         `json:"description" validate:"omitempty,max=255"`
	Type        string          `json:"type" validate:"required,oneof=income expense savings"`
}

type TransactionListResponse struct {
	Total        int                  `json:"total"`
	Transactions []models.Transaction `json:"transactions"`
}

// List возвращает операции с фильтрами from, to, type, category_id и пагинацией.
func (h *TransactionHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	limit, offset, err := parsePagination(c, 50, 500)
	if err != nil {
		return badRequest(c, err.Error())
	}

	filter, err := parseTransactionFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	rows, err := h.Transactions.List(c.Request().Context(), userID, filter, limit, offset)
	if err != nil {
		return serverError(c)
	}

	total, err := h.Transactions.Count(c.Request().Context(), userID, filter)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, TransactionListResponse{Total: total, Transactions: rows})
}

// Create добавляет операцию вручную.
func (h *TransactionHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	row, err := h.bindTransaction(c, userID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.Transactions.Create(c.Request().Context(), userID, row)
	if err != nil {
		return transactionError(c, err)
	}

	publishTransactionsCreated(h.Notifier, userID, []uuid.UUID{created.ID}, "manual")
	return c.JSON(http.StatusCreated, created)
}

// Update меняет операцию.
func (h *TransactionHandler) Update(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	row, err := h.bindTransaction(c, userID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.Transactions.Update(c.Request().Context(), userID, id, row)
	if err != nil {
		return transactionError(c, err)
	}

	publishEvent(h.Notifier, userID, notifications.EventTransactionChanged, map[string]string{"transaction_id": id.String(), "action": "updated"})
	return c.JSON(http.StatusOK, updated)
}

// Delete удаляет операцию.
func (h *TransactionHandler) Delete(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	if err := h.Transactions.Delete(c.Request().Context(), userID, id); err != nil {
		return transactionError(c, err)
	}

	publishEvent(h.Notifier, userID, notifications.EventTransactionChanged, map[string]string{"transaction_id": id.String(), "action": "deleted"})
	return c.NoContent(http.StatusNoContent)
}

func (h *TransactionHandler) bindTransaction(c echo.Context, userID uuid.UUID) (models.Transaction, error) {
	var req TransactionRequest
	if err := c.Bind(&req); err != nil {
		return models.Transaction{}, errors.New("invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return models.Transaction{}, errors.New("validation failed")
	}

	row := models.Transaction{
		UserID:      userID,
		Amount:      req.Amount.Round(2),
		Type:        models.TransactionType(req.Type),
		Description: trimOptional(req.Description),
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
	}

	if row.Currency == "" {
		row.Currency = h.baseCurrency(c.Request().Context(), userID)
	}

	row.Date = time.Now().UTC().Truncate(24 * time.Hour)
	if date := strings.TrimSpace(req.Date); date != "" {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return models.Transaction{}, errors.New("invalid date format")
		}
		row.Date = parsed
	}

	if raw := trimOptional(req.CategoryID); raw != nil {
		categoryID, err := uuid.Parse(*raw)
		if err != nil {
			return models.Transaction{}, errors.New("invalid category_id")
		}
		row.CategoryID = &categoryID
	}

	return row, nil
}

// baseCurrency возвращает валюту профиля или RUB, если профиль недоступен.
func (h *TransactionHandler) baseCurrency(ctx context.Context, userID uuid.UUID) string {
	if h.Profiles != nil {
		if profile, err := h.Profiles.Get(ctx, userID); err == nil && profile.Currency != "" {
			return profile.Currency
		}
	}
	return models.DefaultCurrency
}

func parseTransactionFilter(c echo.Context) (repository.TransactionFilter, error) {
	filter := repository.TransactionFilter{}

	if raw := strings.TrimSpace(c.QueryParam("from")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, errors.New("invalid from")
		}
		filter.From = &parsed
	}

	if raw := strings.TrimSpace(c.QueryParam("to")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, errors.New("invalid to")
		}
		filter.To = &parsed
	}

	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, errors.New("to must be after from")
	}

	if raw := strings.TrimSpace(c.QueryParam("type")); raw != "" {
		txType := models.TransactionType(strings.ToLower(raw))
		if !txType.Valid() {
			return filter, errors.New("invalid type")
		}
		filter.Type = &txType
	}

	if raw := strings.TrimSpace(c.QueryParam("category_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("invalid category_id")
		}
		filter.CategoryID = &parsed
	}

	return filter, nil
}

func transactionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "transaction not found")
	case errors.Is(err, repository.ErrCategoryMissing):
		return badRequest(c, "category not found")
	case errors.Is(err, repository.ErrInvalid):
		return badRequest(c, "invalid transaction")
	default:
		return serverError(c)
	}
}
