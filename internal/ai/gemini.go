package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient calls Gemini through the Google Gen AI SDK.
type GeminiClient struct {
	client        *genai.Client
	model         string
	maxTokens     int
	timeout       time.Duration
	streamTimeout time.Duration
}

// NewGeminiClient создает клиент Gemini. Пустой baseURL означает адрес SDK по умолчанию.
func NewGeminiClient(ctx context.Context, apiKey, baseURL, model string, timeout, streamTimeout time.Duration, maxTokens int) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is missing")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: trimmed}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		client:        client,
		model:         model,
		maxTokens:     maxTokens,
		timeout:       timeout,
		streamTimeout: streamTimeout,
	}, nil
}

// Model возвращает имя модели клиента.
func (c *GeminiClient) Model() string { return c.model }

// Timeout возвращает таймаут одного запроса без потоковой выдачи.
func (c *GeminiClient) Timeout() time.Duration { return c.timeout }

// Chat отправляет сообщения в Gemini и возвращает JSON-ответ модели.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message) (string, []byte, error) {
	system, contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return "", nil, errors.New("gemini request has no user content")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := c.generationConfig(system, 0.1)
	config.ResponseMIMEType = "application/json"

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", nil, geminiError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", []byte(text), errors.New("gemini response missing content")
	}

	return text, []byte(text), nil
}

// ChatStream передает фрагменты ответа Gemini по мере генерации.
func (c *GeminiClient) ChatStream(ctx context.Context, messages []Message, onDelta func(string) error) error {
	system, contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return errors.New("gemini request has no user content")
	}

	ctx, cancel := context.WithTimeout(ctx, c.streamTimeout)
	defer cancel()

	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, c.generationConfig(system, 0.7)) {
		if err != nil {
			return geminiError(err)
		}

		delta := resp.Text()
		if delta == "" {
			continue
		}
		if err := onDelta(delta); err != nil {
			return err
		}
	}

	return nil
}

// Transcribe распознает речь, передавая аудио встроенной частью запроса.
func (c *GeminiClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: "Transcribe this voice note verbatim in its original language. Return only the transcript text."},
				{InlineData: &genai.Blob{MIMEType: strings.SplitN(mimeType, ";", 2)[0], Data: audio}},
			},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.generationConfig(nil, 0))
	if err != nil {
		return "", geminiError(err)
	}

	return strings.TrimSpace(resp.Text()), nil
}

func (c *GeminiClient) generationConfig(system *genai.Content, temperature float32) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(temperature),
		MaxOutputTokens:   int32(resolveMaxTokens(c.maxTokens)),
	}
}

// toGeminiContents раскладывает сообщения на системную инструкцию и диалог.
func toGeminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	systemParts := make([]*genai.Part, 0)
	contents := make([]*genai.Content, 0, len(messages))

	for _, message := range messages {
		role := strings.ToLower(strings.TrimSpace(message.Role))
		text := strings.TrimSpace(message.Content)
		if text == "" {
			continue
		}

		switch role {
		case "system":
			systemParts = append(systemParts, &genai.Part{Text: text})
		case "assistant", "model":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: text}}})
		}
	}

	if len(systemParts) == 0 {
		return nil, contents
	}

	return &genai.Content{Parts: systemParts}, contents
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, apiErr.Message)
	}
	return err
}
