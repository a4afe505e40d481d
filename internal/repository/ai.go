package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	RequestTypeVoiceParse = "voice_parse"
	RequestTypeChat       = "chat"
)

type AIRepository struct {
	db *pgxpool.Pool
}

// AIRequestLog описывает одно обращение к модели: распознавание, извлечение или чат.
type AIRequestLog struct {
	UserID          uuid.UUID
	RequestType     string
	Provider        string
	Model           string
	Prompt          string
	RequestPayload  []byte
	ResponsePayload []byte
	RawResponse     string
	Success         bool
	ErrorMessage    *string
	Latency         time.Duration
}

// NewAIRepository создает репозиторий для AI-запросов.
func NewAIRepository(db *pgxpool.Pool) *AIRepository {
	return &AIRepository{db: db}
}

// LogRequest сохраняет лог AI-запроса.
func (r *AIRepository) LogRequest(ctx context.Context, log AIRequestLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_requests
		 (user_id, request_type, provider, model, prompt, request_payload, response_payload, raw_response, success, error_message, latency_ms)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, '')::jsonb, NULLIF($7, '')::jsonb, NULLIF($8, ''), $9, $10, $11)`,
		log.UserID,
		log.RequestType,
		log.Provider,
		log.Model,
		log.Prompt,
		string(log.RequestPayload),
		string(log.ResponsePayload),
		log.RawResponse,
		log.Success,
		log.ErrorMessage,
		log.Latency.Milliseconds(),
	)
	return err
}
