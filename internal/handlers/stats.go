package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/repository"
)

// StatsStore описывает агрегаты по операциям пользователя.
type StatsStore interface {
	Overview(ctx context.Context, userID uuid.UUID, from, to time.Time) (repository.OverviewStats, error)
	SpendingByCategory(ctx context.Context, userID uuid.UUID, txType models.TransactionType, from, to time.Time) ([]repository.CategorySpend, error)
	MonthlyTrend(ctx context.Context, userID uuid.UUID, months int) ([]repository.MonthlyTotals, error)
}

type StatsHandler struct {
	Stats StatsStore
	Now   func() time.Time
}

// NewStatsHandler создает обработчик аналитики.
func NewStatsHandler(stats StatsStore) *StatsHandler {
	return &StatsHandler{Stats: stats, Now: time.Now}
}

type CategorySpendingResponse struct {
	From       string                     `json:"from"`
	To         string                     `json:"to"`
	Type       models.TransactionType     `json:"type"`
	Total      decimal.Decimal            `json:"total"`
	Categories []repository.CategorySpend `json:"categories"`
}

type MonthlyTrendResponse struct {
	Months []MonthlyTrendItem `json:"months"`
}

type MonthlyTrendItem struct {
	Month   string          `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Savings decimal.Decimal `json:"savings"`
	Balance decimal.Decimal `json:"balance"`
}

// Overview возвращает доходы, расходы, накопления и баланс за период from..to (по умолчанию текущий месяц).
func (h *StatsHandler) Overview(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	from, to, err := parsePeriod(c.QueryParam("from"), c.QueryParam("to"), h.Now())
	if err != nil {
		return badRequest(c, err.Error())
	}

	stats, err := h.Stats.Overview(c.Request().Context(), userID, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid period")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, stats)
}

// SpendingByCategory возвращает суммы по категориям для типа операций (по умолчанию expense).
func (h *StatsHandler) SpendingByCategory(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	from, to, err := parsePeriod(c.QueryParam("from"), c.QueryParam("to"), h.Now())
	if err != nil {
		return badRequest(c, err.Error())
	}

	txType := models.TransactionTypeExpense
	if raw := strings.TrimSpace(c.QueryParam("type")); raw != "" {
		txType = models.TransactionType(strings.ToLower(raw))
		if !txType.Valid() {
			return badRequest(c, "invalid type")
		}
	}

	items, err := h.Stats.SpendingByCategory(c.Request().Context(), userID, txType, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid period")
		}
		return serverError(c)
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	if items == nil {
		items = []repository.CategorySpend{}
	}

	return c.JSON(http.StatusOK, CategorySpendingResponse{
		From:       from.Format(dateLayout),
		To:         to.Format(dateLayout),
		Type:       txType,
		Total:      total,
		Categories: items,
	})
}

// MonthlyTrend возвращает помесячные итоги за последние months месяцев (по умолчанию 6, не больше 24).
func (h *StatsHandler) MonthlyTrend(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	months := 6
	if raw := c.QueryParam("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return badRequest(c, "invalid months")
		}
		if parsed > 24 {
			parsed = 24
		}
		months = parsed
	}

	items, err := h.Stats.MonthlyTrend(c.Request().Context(), userID, months)
	if err != nil {
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid months")
		}
		return serverError(c)
	}

	response := make([]MonthlyTrendItem, 0, len(items))
	for _, item := range items {
		response = append(response, MonthlyTrendItem{
			Month:   item.Month.Format("2006-01"),
			Income:  item.Income,
			Expense: item.Expense,
			Savings: item.Savings,
			Balance: item.Income.Sub(item.Expense).Sub(item.Savings),
		})
	}

	return c.JSON(http.StatusOK, MonthlyTrendResponse{Months: response})
}
