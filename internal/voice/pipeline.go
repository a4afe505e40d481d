// Package voice превращает голосовую заметку в список операций: распознает речь,
// просит модель разложить текст на операции и проверяет ответ.
package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/ai"
	"example.com/kapitallo/backend/internal/archive"
	"example.com/kapitallo/backend/internal/categories"
	"example.com/kapitallo/backend/internal/models"
)

const defaultMimeType = "audio/webm"

var (
	ErrInvalidInput  = errors.New("invalid voice input")
	ErrTranscription = errors.New("could not process recording, try again")
	ErrExtraction    = errors.New("failed to process recording")
)

// Context передается явно в каждый вызов вместо глобального состояния сессии.
type Context struct {
	UserID     uuid.UUID
	Currency   string
	Categories []models.Category
}

type Input struct {
	AudioBase64 string
	MimeType    string
	Context     Context
}

// Result возвращается клиенту на подтверждение. Prompt и Raw нужны только для журнала запросов.
type Result struct {
	Transcript   string                     `json:"transcript"`
	Transactions []models.ParsedTransaction `json:"transactions"`
	Prompt       string                     `json:"-"`
	Raw          []byte                     `json:"-"`
	AudioURI     string                     `json:"-"`
}

type Pipeline struct {
	transcriber ai.Transcriber
	extractor   ai.Client
	archive     archive.Archive
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewPipeline создает конвейер разбора голосовых заметок. store может быть nil.
func NewPipeline(transcriber ai.Transcriber, extractor ai.Client, store archive.Archive, logger *slog.Logger) *Pipeline {
	if store == nil {
		store = archive.NopArchive{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	v.RegisterCustomTypeFunc(models.DecimalValue, decimal.Decimal{})

	return &Pipeline{
		transcriber: transcriber,
		extractor:   extractor,
		archive:     store,
		validate:    v,
		logger:      logger,
	}
}

// Parse распознает запись и извлекает из нее операции. Ничего не сохраняет в базу.
func (p *Pipeline) Parse(ctx context.Context, input Input) (Result, error) {
	audio, mimeType, err := decodeAudio(input)
	if err != nil {
		return Result{}, err
	}

	logger := p.logger.With("user_id", input.Context.UserID.String())
	result := Result{}

	if uri, err := p.archive.Save(ctx, input.Context.UserID, audio, mimeType); err != nil {
		logger.Warn("voice archive failed", "step", "archive", "error", err)
	} else {
		result.AudioURI = uri
	}

	started := time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		logger.Error("voice transcription failed", "step", "transcribe", "error", err)
		return result, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		logger.Warn("voice transcript is empty", "step", "transcribe")
		return result, fmt.Errorf("%w: empty transcript", ErrTranscription)
	}
	result.Transcript = transcript
	logger.Info("voice transcribed", "step", "transcribe", "latency", time.Since(started), "chars", len([]rune(transcript)))

	currency := strings.TrimSpace(input.Context.Currency)
	if currency == "" {
		currency = models.DefaultCurrency
	}

	prompt, err := buildExtractionPrompt(transcript, currency, input.Context.Categories)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	result.Prompt = prompt

	messages := []ai.Message{
		{Role: "system", Content: "You extract personal finance transactions from speech. Respond with JSON only, without extra text."},
		{Role: "user", Content: prompt},
	}

	started = time.Now()
	content, raw, err := p.extractor.Chat(ctx, messages)
	result.Raw = raw
	if err != nil {
		logger.Error("voice extraction failed", "step", "extract", "error", err)
		return result, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	transactions, err := p.decode(content, transcript, input.Context.Categories)
	if err != nil {
		logger.Error("voice extraction rejected", "step", "decode", "error", err)
		return result, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	result.Transactions = transactions
	logger.Info("voice parsed", "step", "extract", "latency", time.Since(started), "transactions", len(transactions))

	return result, nil
}

// decodeAudio проверяет вход до любых сетевых вызовов.
func decodeAudio(input Input) ([]byte, string, error) {
	if input.Context.UserID == uuid.Nil {
		return nil, "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	payload := strings.TrimSpace(input.AudioBase64)
	mimeType := strings.TrimSpace(input.MimeType)

	// data:audio/webm;codecs=opus;base64,....
	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", fmt.Errorf("%w: malformed data url", ErrInvalidInput)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		payload = body
	}

	if payload == "" {
		return nil, "", fmt.Errorf("%w: audio is required", ErrInvalidInput)
	}

	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		audio, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: audio is not valid base64", ErrInvalidInput)
		}
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("%w: audio is required", ErrInvalidInput)
	}

	if mimeType == "" {
		mimeType = defaultMimeType
	}

	return audio, mimeType, nil
}

func buildExtractionPrompt(transcript, currency string, rows []models.Category) (string, error) {
	catalogue, err := json.Marshal(categories.Catalogue(rows))
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`Extract financial transactions from a voice note transcript and return JSON.

Requirements:
- Output JSON only, no code fences, no extra text.
- Schema:
{
  "total": number | null,
  "transactions": [
    {"amount": number, "category_id": string | null, "type": "income" | "expense" | "savings", "description": string}
  ]
}
- Emit one element per distinct spend or income. If the speaker states a total and then its parts
  (for example "5000 total: 3000 groceries, 2000 taxi"), emit one element per part and never the aggregate,
  and put the stated total into "total". Otherwise "total" is null.
- "amount" is a positive number in %s without currency signs or thousands separators.
- "category_id" must be an "id" from the categories list whose name matches the intent by meaning and whose
  type matches the transaction type. If no category is a confident match, use null. Never invent ids.
- If the speaker does not say whether money came in or went out, use "expense".
- "description" is a short label (up to 60 characters) in the language of the transcript.

Categories:
%s

Transcript:
%s`, currency, string(catalogue), transcript)

	return prompt, nil
}

type extraction struct {
	Total        *decimal.Decimal `json:"total"`
	Transactions []extractedItem  `json:"transactions"`
}

type extractedItem struct {
	Amount      *decimal.Decimal `json:"amount"`
	CategoryID  json.RawMessage  `json:"category_id"`
	Type        string           `json:"type"`
	Description string           `json:"description"`
}

type batch struct {
	Transactions []models.ParsedTransaction `validate:"required,min=1,dive"`
}

// decode разбирает ответ модели, чинит допустимые отклонения и проверяет схему.
func (p *Pipeline) decode(content, transcript string, rows []models.Category) ([]models.ParsedTransaction, error) {
	var parsed extraction
	if err := ai.ParseJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("malformed model output: %w", err)
	}

	resolver := newCategoryResolver(rows)
	out := make([]models.ParsedTransaction, 0, len(parsed.Transactions))
	sum := decimal.Zero

	for i, item := range parsed.Transactions {
		if item.Amount == nil {
			return nil, fmt.Errorf("transaction %d has no amount", i)
		}

		txType := normalizeType(item.Type)
		amount := item.Amount.Abs().Round(2)
		description := strings.TrimSpace(item.Description)
		if description == "" {
			description = transcript
		}
		if runes := []rune(description); len(runes) > 255 {
			description = string(runes[:255])
		}

		out = append(out, models.ParsedTransaction{
			Amount:      amount,
			CategoryID:  resolver.resolve(item.CategoryID, txType),
			Type:        txType,
			Description: description,
		})
		sum = sum.Add(amount)
	}

	if err := p.validate.Struct(batch{Transactions: out}); err != nil {
		return nil, fmt.Errorf("model output failed validation: %w", err)
	}

	if parsed.Total != nil && parsed.Total.IsPositive() && !sum.Equal(parsed.Total.Abs().Round(2)) {
		return nil, fmt.Errorf("parts sum to %s, stated total is %s", sum.String(), parsed.Total.String())
	}

	return out, nil
}

var typeAliases = map[string]models.TransactionType{
	"":           models.TransactionTypeExpense,
	"expense":    models.TransactionTypeExpense,
	"expenses":   models.TransactionTypeExpense,
	"spend":      models.TransactionTypeExpense,
	"расход":     models.TransactionTypeExpense,
	"income":     models.TransactionTypeIncome,
	"доход":      models.TransactionTypeIncome,
	"savings":    models.TransactionTypeSavings,
	"saving":     models.TransactionTypeSavings,
	"накопления": models.TransactionTypeSavings,
}

// normalizeType приводит тип к income, expense или savings. Пустой тип означает расход.
func normalizeType(value string) models.TransactionType {
	key := strings.ToLower(strings.TrimSpace(value))
	if mapped, ok := typeAliases[key]; ok {
		return mapped
	}
	return models.TransactionType(key)
}

type categoryResolver struct {
	byID   map[uuid.UUID]models.Category
	byName map[string][]models.Category
}

func newCategoryResolver(rows []models.Category) categoryResolver {
	byName := make(map[string][]models.Category, len(rows))
	for _, row := range rows {
		key := strings.ToLower(strings.TrimSpace(row.Name))
		byName[key] = append(byName[key], row)
	}
	return categoryResolver{byID: categories.Index(rows), byName: byName}
}

// resolve возвращает id категории из каталога или nil. Модель иногда отвечает
// названием вместо id; совпадение по названию принимается, только если оно однозначно.
func (r categoryResolver) resolve(raw json.RawMessage, txType models.TransactionType) *uuid.UUID {
	var value string
	if len(raw) == 0 || json.Unmarshal(raw, &value) != nil {
		return nil
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "null") {
		return nil
	}

	if id, err := uuid.Parse(value); err == nil {
		if _, ok := r.byID[id]; ok {
			return &id
		}
		return nil
	}

	matches := r.byName[strings.ToLower(value)]
	var found *uuid.UUID
	for _, row := range matches {
		if row.Type != txType {
			continue
		}
		if found != nil {
			return nil
		}
		id := row.ID
		found = &id
	}
	return found
}
