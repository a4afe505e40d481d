package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestOpenAIChatJSONMode проверяет запрос в JSON-режиме и разбор ответа.
func TestOpenAIChatJSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Fatalf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Fatalf("expected json_object response format, got %+v", req.ResponseFormat)
		}
		if req.Stream {
			t.Fatal("expected non-streaming request")
		}

		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"transactions\":[]}"}}]}`)
	}))
	defer server.Close()

	client := NewOpenAIClient("key", server.URL+"/", "test-model", time.Second, time.Second, 0)
	content, raw, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != `{"transactions":[]}` {
		t.Fatalf("unexpected content: %s", content)
	}
	if len(raw) == 0 {
		t.Fatal("expected raw response")
	}
}

// TestOpenAIStatusErrors проверяет различимость 429 и 402.
func TestOpenAIStatusErrors(t *testing.T) {
	cases := map[int]error{
		http.StatusTooManyRequests: ErrRateLimited,
		http.StatusPaymentRequired: ErrPaymentRequired,
	}

	for status, want := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"limit"}}`)
		}))

		client := NewOpenAIClient("key", server.URL, "m", time.Second, time.Second, 0)
		_, _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
		server.Close()

		if !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v, got %v", status, want, err)
		}
	}
}

// TestOpenAIChatStream проверяет потоковую выдачу фрагментов.
func TestOpenAIChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Траты \"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"в норме\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClient("key", server.URL, "m", time.Second, time.Second, 0)

	var collected strings.Builder
	err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "как дела?"}}, func(delta string) error {
		collected.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if collected.String() != "Траты в норме" {
		t.Fatalf("unexpected content: %q", collected.String())
	}
}

// TestWhisperTranscribe проверяет multipart-загрузку аудио.
func TestWhisperTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-large-v3" || r.FormValue("language") != "ru" {
			t.Fatalf("unexpected fields: %v", r.MultipartForm.Value)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file: %v", err)
		}
		defer file.Close()
		if header.Filename != "recording.ogg" {
			t.Fatalf("unexpected filename: %s", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "audio" {
			t.Fatalf("unexpected audio: %q", data)
		}

		_, _ = io.WriteString(w, `{"text":"  такси две тысячи  "}`)
	}))
	defer server.Close()

	client := NewWhisperClient("key", server.URL, "whisper-large-v3", "ru", time.Second)
	text, err := client.Transcribe(context.Background(), []byte("audio"), "audio/ogg; codecs=opus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "такси две тысячи" {
		t.Fatalf("unexpected transcript: %q", text)
	}
}

// TestWhisperRejectsEmptyAudio проверяет отказ без сетевого запроса.
func TestWhisperRejectsEmptyAudio(t *testing.T) {
	client := NewWhisperClient("key", "http://127.0.0.1:0", "m", "", time.Second)
	if _, err := client.Transcribe(context.Background(), nil, "audio/webm"); err == nil {
		t.Fatal("expected error for empty audio")
	}
}
