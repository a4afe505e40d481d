package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
}

func conflict(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, map[string]string{"error": message})
}

func notFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, map[string]string{"error": message})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
}

func paymentRequired(c echo.Context, message string) error {
	return c.JSON(http.StatusPaymentRequired, map[string]string{"error": message})
}

func tooManyRequests(c echo.Context, message string) error {
	return c.JSON(http.StatusTooManyRequests, map[string]string{"error": message})
}

func serverError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// extendWriteDeadline продлевает запись ответа сверх SERVER_WRITE_TIMEOUT для долгих запросов к модели.
func extendWriteDeadline(c echo.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	controller := http.NewResponseController(c.Response().Writer)
	if err := controller.SetWriteDeadline(time.Now().Add(timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("write deadline not extended", "error", err)
	}
}

// parsePeriod разбирает период в формате YYYY-MM-DD. Пустые границы означают текущий месяц.
func parsePeriod(start, end string, now time.Time) (time.Time, time.Time, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStart := monthStart
	periodEnd := monthStart.AddDate(0, 1, -1)

	if start != "" {
		parsed, err := time.Parse(dateLayout, start)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from format")
		}
		periodStart = parsed
	}

	if end != "" {
		parsed, err := time.Parse(dateLayout, end)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to format")
		}
		periodEnd = parsed
	}

	if periodEnd.Before(periodStart) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}

	return periodStart, periodEnd, nil
}

func validateHexColor(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !isHexColor(trimmed) {
		return "", errors.New("color must be a hex color")
	}
	return strings.ToUpper(trimmed), nil
}

func isHexColor(value string) bool {
	if len(value) != 7 || value[0] != '#' {
		return false
	}
	for _, r := range value[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}

	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}

	return &trimmed
}
