package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FeedbackRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackRepository создает репозиторий отзывов.
func NewFeedbackRepository(db *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create сохраняет отзыв и возвращает его идентификатор.
func (r *FeedbackRepository) Create(ctx context.Context, userID uuid.UUID, message string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`INSERT INTO feedback (user_id, message) VALUES ($1, $2) RETURNING id`,
		userID, message,
	).Scan(&id)
	return id, err
}

// MarkDelivered отмечает, что отзыв переслан в Telegram.
func (r *FeedbackRepository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `UPDATE feedback SET delivered = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
