// Package billing проверяет и разбирает уведомления платежного провайдера.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventPaymentSucceeded     = "payment.succeeded"
	EventSubscriptionCanceled = "subscription.canceled"

	SignatureHeader = "X-Signature"
)

var (
	ErrBadSignature = errors.New("invalid webhook signature")
	ErrBadEvent     = errors.New("invalid webhook event")
)

type Event struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	UserID   uuid.UUID       `json:"user_id"`
	Plan     string          `json:"plan"`
	Days     int             `json:"days"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Sign возвращает hex HMAC-SHA256 тела запроса.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись за постоянное время. Допускается префикс "sha256=".
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("%w: webhook secret is not configured", ErrBadSignature)
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(provided) == 0 {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// ParseEvent разбирает тело уведомления и проверяет обязательные поля.
func ParseEvent(body []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	event.ID = strings.TrimSpace(event.ID)
	if event.ID == "" || event.UserID == uuid.Nil {
		return Event{}, fmt.Errorf("%w: id and user_id are required", ErrBadEvent)
	}

	switch event.Type {
	case EventPaymentSucceeded:
		if event.Days <= 0 {
			return Event{}, fmt.Errorf("%w: days must be positive", ErrBadEvent)
		}
		if strings.TrimSpace(event.Plan) == "" {
			event.Plan = "pro"
		}
	case EventSubscriptionCanceled:
	default:
		return Event{}, fmt.Errorf("%w: unsupported type %q", ErrBadEvent, event.Type)
	}

	return event, nil
}
