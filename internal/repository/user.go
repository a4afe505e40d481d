package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/kapitallo/backend/internal/models"
)

type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository создает репозиторий пользователей.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create регистрирует пользователя вместе с профилем, пробной подпиской
// и стартовым набором категорий в одной транзакции.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string, name *string, trialDays int) (models.User, error) {
	var user models.User
	var nameValue *string

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return user, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name)
		 VALUES ($1, $2, $3)
		 RETURNING id, email, password_hash, name, created_at, updated_at`,
		email, passwordHash, name,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &nameValue, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user, ErrConflict
		}
		return user, err
	}
	user.Name = nameValue

	if _, err := tx.Exec(ctx,
		`INSERT INTO profiles (user_id, display_name, currency) VALUES ($1, $2, $3)`,
		user.ID, name, models.DefaultCurrency,
	); err != nil {
		return user, err
	}

	trialEnds := user.CreatedAt.AddDate(0, 0, trialDays)
	if _, err := tx.Exec(ctx,
		`INSERT INTO subscriptions (user_id, status, plan, trial_ends_at) VALUES ($1, $2, $3, $4)`,
		user.ID, models.SubscriptionStatusTrial, models.PlanTrial, trialEnds,
	); err != nil {
		return user, err
	}

	if err := seedCategories(ctx, tx, user.ID); err != nil {
		return user, err
	}

	if err := tx.Commit(ctx); err != nil {
		return user, err
	}

	return user, nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	var nameValue *string

	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, name, created_at, updated_at
		 FROM users
		 WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &nameValue, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrNotFound
		}
		return user, err
	}

	user.Name = nameValue
	return user, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	var nameValue *string

	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, name, created_at, updated_at
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &nameValue, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrNotFound
		}
		return user, err
	}

	user.Name = nameValue
	return user, nil
}
