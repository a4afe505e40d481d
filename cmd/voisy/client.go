package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/stream"
)

// apiClient ходит в HTTP API с access-токеном пользователя.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type apiError struct {
	Status   int
	Message  string `json:"error"`
	Redirect string `json:"redirect"`
}

func (e *apiError) Error() string {
	if e.Redirect != "" {
		return fmt.Sprintf("api status %d: %s (open %s)", e.Status, e.Message, e.Redirect)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type parseResponse struct {
	Transcript   string                     `json:"transcript"`
	Transactions []models.ParsedTransaction `json:"transactions"`
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) parseVoice(ctx context.Context, audioBase64, mimeType string) (parseResponse, error) {
	var out parseResponse
	err := c.postJSON(ctx, "/api/v1/voice/parse", map[string]string{
		"audio":     audioBase64,
		"mime_type": mimeType,
	}, &out)
	return out, err
}

func (c *apiClient) confirmVoice(ctx context.Context, txs []models.ParsedTransaction) (int, error) {
	var out struct {
		Transactions []models.Transaction `json:"transactions"`
	}
	if err := c.postJSON(ctx, "/api/v1/voice/confirm", map[string]interface{}{"transactions": txs}, &out); err != nil {
		return 0, err
	}
	return len(out.Transactions), nil
}

// chat отправляет историю и печатает ответ ассистента по мере поступления.
func (c *apiClient) chat(ctx context.Context, history []ai.Message, onDelta func(string) error) (string, error) {
	resp, err := c.do(ctx, "/api/v1/chat/stream", map[string]interface{}{"messages": history})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return stream.Consume(resp.Body, onDelta)
}

func (c *apiClient) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	resp, err := c.do(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) do(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := &apiError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}

	return resp, nil
}
