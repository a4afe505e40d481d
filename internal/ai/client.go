package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const defaultMaxTokens = 4096

var (
	ErrRateLimited     = errors.New("ai provider rate limited")
	ErrPaymentRequired = errors.New("ai provider requires payment")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client возвращает полный ответ модели в JSON-режиме.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, []byte, error)
}

// Streamer отдает ответ модели по фрагментам в порядке поступления.
type Streamer interface {
	ChatStream(ctx context.Context, messages []Message, onDelta func(string) error) error
}

// Transcriber превращает запись голоса в текст.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

func resolveMaxTokens(value int) int {
	if value > 0 {
		return value
	}

	return defaultMaxTokens
}

// statusError переводит HTTP-статус провайдера в ошибку, различимую через errors.Is.
func statusError(provider string, status int, message string) error {
	message = strings.TrimSpace(message)
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s api error: %s: %w", provider, message, ErrRateLimited)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%s api error: %s: %w", provider, message, ErrPaymentRequired)
	default:
		return fmt.Errorf("%s api error (%d): %s", provider, status, message)
	}
}

// audioExtension подбирает расширение файла для multipart-загрузки.
func audioExtension(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch base {
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac":
		return "m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	default:
		return "webm"
	}
}
