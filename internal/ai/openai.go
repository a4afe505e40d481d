package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"example.com/kapitallo/backend/internal/stream"
)

// OpenAIClient calls an OpenAI-compatible chat completions API (Groq, OpenAI, gateways).
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	model        string
	maxTokens    int
	httpClient   *http.Client
	streamClient *http.Client
}

type openAIChatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Stream         bool              `json:"stream,omitempty"`
	ResponseFormat *openAIRespFormat `json:"response_format,omitempty"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
}

// NewOpenAIClient создает клиент OpenAI-совместимого API. streamTimeout ограничивает
// потоковые ответы, а timeout обычные запросы.
func NewOpenAIClient(apiKey, baseURL, model string, timeout, streamTimeout time.Duration, maxTokens int) *OpenAIClient {
	trimmedURL := strings.TrimRight(baseURL, "/")
	return &OpenAIClient{
		apiKey:    apiKey,
		baseURL:   trimmedURL,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		streamClient: &http.Client{
			Timeout: streamTimeout,
		},
	}
}

// Chat отправляет сообщения и возвращает JSON-ответ модели и сырой ответ API.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, []byte, error) {
	reqBody := openAIChatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    0.1,
		MaxTokens:      resolveMaxTokens(c.maxTokens),
		ResponseFormat: &openAIRespFormat{Type: "json_object"},
	}

	response, err := c.post(ctx, c.httpClient, reqBody)
	if err != nil {
		return "", nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", nil, err
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", body, openAIStatusError(response.StatusCode, body)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", body, err
	}

	if len(parsed.Choices) == 0 {
		return "", body, errors.New("openai response missing choices")
	}

	return parsed.Choices[0].Message.Content, body, nil
}

// ChatStream запрашивает потоковый ответ и передает фрагменты текста в onDelta.
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []Message, onDelta func(string) error) error {
	reqBody := openAIChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   resolveMaxTokens(c.maxTokens),
		Stream:      true,
	}

	response, err := c.post(ctx, c.streamClient, reqBody)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
		return openAIStatusError(response.StatusCode, body)
	}

	_, err = stream.Consume(response.Body, onDelta)
	return err
}

func (c *OpenAIClient) post(ctx context.Context, client *http.Client, reqBody openAIChatRequest) (*http.Response, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, errors.New("openai api key is missing")
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")
	if reqBody.Stream {
		request.Header.Set("Accept", "text/event-stream")
	}

	return client.Do(request)
}

// WhisperClient calls an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperClient struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// NewWhisperClient создает клиент распознавания речи.
func NewWhisperClient(apiKey, baseURL, model, language string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		language: language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transcribe загружает аудио и возвращает распознанный текст.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", errors.New("whisper api key is missing")
	}
	if len(audio) == 0 {
		return "", errors.New("audio is empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "recording."+audioExtension(mimeType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}

	fields := map[string]string{
		"model":           c.model,
		"response_format": "json",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", err
		}
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/audio/transcriptions", c.baseURL)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", openAIStatusError(response.StatusCode, raw)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}

	return strings.TrimSpace(parsed.Text), nil
}

func openAIStatusError(status int, body []byte) error {
	var apiErr struct {
		Error *openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil {
		return statusError("openai", status, apiErr.Error.Message)
	}
	return statusError("openai", status, string(body))
}
