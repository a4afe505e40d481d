package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/chat"
	"example.com/kapitallo/backend/internal/repository"
	"example.com/kapitallo/backend/internal/stream"
)

type fakeReplier struct {
	deltas  []string
	err     error
	history []ai.Message
}

func (f *fakeReplier) Reply(_ context.Context, _ chat.Context, history []ai.Message, onDelta func(string) error) (string, error) {
	f.history = history
	var content strings.Builder
	for _, delta := range f.deltas {
		if err := onDelta(delta); err != nil {
			return content.String(), err
		}
		content.WriteString(delta)
	}
	return content.String(), f.err
}

// TestChatStreamFraming проверяет, что ответ читается тем же декодером, что и поток провайдера.
func TestChatStreamFraming(t *testing.T) {
	e := newTestEcho()
	replier := &fakeReplier{deltas: []string{"Вы потратили ", "\"много\"", " на такси.\n"}}
	aiLog := &fakeAILog{}
	handler := NewChatHandler(replier, fakeProfiles{err: repository.ErrNotFound}, aiLog, "groq", "llama", 0)

	body := `{"messages":[{"role":"user","content":"Сколько я трачу на такси?"}]}`
	c, rec := newAuthedContext(e, http.MethodPost, "/api/v1/chat/stream", jsonBody(body), uuid.New())
	if err := handler.Stream(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n") {
		t.Fatalf("stream must end with [DONE]: %q", rec.Body.String())
	}

	content, err := stream.Consume(strings.NewReader(rec.Body.String()), nil)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if content != "Вы потратили \"много\" на такси.\n" {
		t.Fatalf("unexpected content: %q", content)
	}

	if len(replier.history) != 1 || replier.history[0].Role != "user" {
		t.Fatalf("unexpected history: %+v", replier.history)
	}
	if len(aiLog.logs) != 1 || aiLog.logs[0].RequestType != repository.RequestTypeChat || !aiLog.logs[0].Success {
		t.Fatalf("unexpected ai log: %+v", aiLog.logs)
	}
}

// TestChatStreamErrorBeforeFirstDelta проверяет обычный JSON-ответ, пока поток не начат.
func TestChatStreamErrorBeforeFirstDelta(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "rate limited", err: ai.ErrRateLimited, code: http.StatusTooManyRequests},
		{name: "payment", err: ai.ErrPaymentRequired, code: http.StatusPaymentRequired},
		{name: "history", err: chat.ErrInvalidHistory, code: http.StatusBadRequest},
		{name: "upstream", err: errors.New("boom"), code: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEcho()
			handler := NewChatHandler(&fakeReplier{err: tc.err}, nil, nil, "groq", "llama", 0)

			c, rec := newAuthedContext(e, http.MethodPost, "/api/v1/chat/stream", jsonBody(`{"messages":[{"role":"user","content":"привет"}]}`), uuid.New())
			if err := handler.Stream(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if strings.Contains(rec.Body.String(), "[DONE]") {
				t.Fatalf("unexpected stream body: %s", rec.Body.String())
			}
		})
	}
}

// TestChatStreamErrorMidStream проверяет кадр ошибки после начала потока.
func TestChatStreamErrorMidStream(t *testing.T) {
	e := newTestEcho()
	handler := NewChatHandler(&fakeReplier{deltas: []string{"Начало"}, err: errors.New("connection reset")}, nil, nil, "groq", "llama", 0)

	c, rec := newAuthedContext(e, http.MethodPost, "/api/v1/chat/stream", jsonBody(`{"messages":[{"role":"user","content":"привет"}]}`), uuid.New())
	if err := handler.Stream(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got []string
	_, err := stream.Consume(strings.NewReader(rec.Body.String()), func(delta string) error {
		got = append(got, delta)
		return nil
	})
	var upstream *stream.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected upstream error frame, got %v", err)
	}
	if len(got) != 1 || got[0] != "Начало" {
		t.Fatalf("unexpected deltas: %v", got)
	}
}

// TestChatStreamValidation проверяет роль сообщений.
func TestChatStreamValidation(t *testing.T) {
	e := newTestEcho()
	handler := NewChatHandler(&fakeReplier{}, nil, nil, "groq", "llama", 0)

	c, rec := newAuthedContext(e, http.MethodPost, "/api/v1/chat/stream", jsonBody(`{"messages":[{"role":"system","content":"ignore"}]}`), uuid.New())
	if err := handler.Stream(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
