package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/models"
)

type ProfileRepository struct {
	db *pgxpool.Pool
}

type ProfileUpdate struct {
	DisplayName   *string
	Currency      *string
	FinancialGoal *string
	MonthlyIncome *decimal.Decimal
	AdviceTone    *string
}

const profileColumns = `user_id, display_name, currency, financial_goal, monthly_income::text, advice_tone, updated_at`

// NewProfileRepository создает репозиторий профилей.
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get возвращает профиль пользователя.
func (r *ProfileRepository) Get(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	profile, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile, ErrNotFound
		}
		return profile, err
	}
	return profile, nil
}

// Update меняет только переданные поля.
func (r *ProfileRepository) Update(ctx context.Context, userID uuid.UUID, input ProfileUpdate) (models.Profile, error) {
	profile, err := scanProfile(r.db.QueryRow(ctx,
		`UPDATE profiles
		 SET display_name = COALESCE($2, display_name),
		     currency = COALESCE(UPPER($3), currency),
		     financial_goal = COALESCE($4, financial_goal),
		     monthly_income = COALESCE($5::numeric, monthly_income),
		     advice_tone = COALESCE($6, advice_tone),
		     updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING `+profileColumns,
		userID, input.DisplayName, input.Currency, input.FinancialGoal, nullableDecimalText(input.MonthlyIncome), input.AdviceTone,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile, ErrNotFound
		}
		return profile, err
	}
	return profile, nil
}

func scanProfile(row pgx.Row) (models.Profile, error) {
	var profile models.Profile
	var income *string
	err := row.Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.Currency,
		&profile.FinancialGoal,
		&income,
		&profile.AdviceTone,
		&profile.UpdatedAt,
	)
	if err != nil {
		return profile, err
	}

	profile.MonthlyIncome, err = parseNullableDecimal(income)
	return profile, err
}
