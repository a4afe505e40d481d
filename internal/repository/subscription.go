package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/kapitallo/backend/internal/billing"
	"example.com/kapitallo/backend/internal/models"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

type PromoInput struct {
	Code           string
	Days           int
	MaxRedemptions int
	ExpiresAt      *time.Time
}

const subscriptionColumns = `user_id, status, plan, trial_ends_at, current_period_end, updated_at`

const promoColumns = `id, code, days, max_redemptions, redemptions, expires_at, is_active, created_at`

// NewSubscriptionRepository создает репозиторий подписок и промокодов.
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Get возвращает подписку пользователя.
func (r *SubscriptionRepository) Get(ctx context.Context, userID uuid.UUID) (models.Subscription, error) {
	subscription, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscription, ErrNotFound
		}
		return subscription, err
	}
	return subscription, nil
}

// Grant продлевает подписку на days дней от большего из текущего конца периода и now.
func (r *SubscriptionRepository) Grant(ctx context.Context, userID uuid.UUID, plan string, days int) (models.Subscription, error) {
	if days <= 0 {
		return models.Subscription{}, ErrInvalid
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Subscription{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	subscription, err := extend(ctx, tx, userID, plan, days)
	if err != nil {
		return subscription, err
	}

	if err := tx.Commit(ctx); err != nil {
		return subscription, err
	}
	return subscription, nil
}

// Expire закрывает доступ, сохраняя историю периода.
func (r *SubscriptionRepository) Expire(ctx context.Context, userID uuid.UUID) (models.Subscription, error) {
	subscription, err := scanSubscription(r.db.QueryRow(ctx,
		`UPDATE subscriptions
		 SET status = $2, updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING `+subscriptionColumns,
		userID, models.SubscriptionStatusExpired,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscription, ErrNotFound
		}
		return subscription, err
	}
	return subscription, nil
}

// RedeemPromo активирует промокод: один раз на пользователя и не больше max_redemptions всего.
func (r *SubscriptionRepository) RedeemPromo(ctx context.Context, userID uuid.UUID, code string) (models.Subscription, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.Subscription{}, ErrPromoInvalid
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Subscription{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	promo, err := scanPromo(tx.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1 FOR UPDATE`,
		code,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, ErrPromoInvalid
		}
		return models.Subscription{}, err
	}

	if !promoRedeemable(promo, time.Now()) {
		return models.Subscription{}, ErrPromoInvalid
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO promo_redemptions (promo_id, user_id) VALUES ($1, $2)`,
		promo.ID, userID,
	); err != nil {
		if isUniqueViolation(err) {
			return models.Subscription{}, ErrConflict
		}
		return models.Subscription{}, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE promo_codes SET redemptions = redemptions + 1 WHERE id = $1`,
		promo.ID,
	); err != nil {
		return models.Subscription{}, err
	}

	subscription, err := extend(ctx, tx, userID, models.PlanPro, promo.Days)
	if err != nil {
		return subscription, err
	}

	if err := tx.Commit(ctx); err != nil {
		return subscription, err
	}
	return subscription, nil
}

// ApplyPaymentEvent применяет уведомление о платеже ровно один раз.
// applied == false означает, что событие с таким id уже обработано.
func (r *SubscriptionRepository) ApplyPaymentEvent(ctx context.Context, event billing.Event) (models.Subscription, bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return models.Subscription{}, false, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Subscription{}, false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	cmd, err := tx.Exec(ctx,
		`INSERT INTO payment_events (id, user_id, type, payload)
		 VALUES ($1, $2, $3, $4::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.UserID, event.Type, string(payload),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Subscription{}, false, ErrNotFound
		}
		return models.Subscription{}, false, err
	}
	if cmd.RowsAffected() == 0 {
		return models.Subscription{}, false, nil
	}

	var subscription models.Subscription
	switch event.Type {
	case billing.EventPaymentSucceeded:
		subscription, err = extend(ctx, tx, event.UserID, event.Plan, event.Days)
	case billing.EventSubscriptionCanceled:
		subscription, err = scanSubscription(tx.QueryRow(ctx,
			`UPDATE subscriptions
			 SET status = $2, updated_at = NOW()
			 WHERE user_id = $1
			 RETURNING `+subscriptionColumns,
			event.UserID, models.SubscriptionStatusExpired,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
		}
	default:
		err = ErrInvalid
	}
	if err != nil {
		return subscription, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return subscription, false, err
	}
	return subscription, true, nil
}

// CreatePromo создает промокод. Код хранится в верхнем регистре.
func (r *SubscriptionRepository) CreatePromo(ctx context.Context, input PromoInput) (models.PromoCode, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" || input.Days <= 0 || input.MaxRedemptions <= 0 {
		return models.PromoCode{}, ErrInvalid
	}

	promo, err := scanPromo(r.db.QueryRow(ctx,
		`INSERT INTO promo_codes (code, days, max_redemptions, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+promoColumns,
		code, input.Days, input.MaxRedemptions, input.ExpiresAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return promo, ErrConflict
		}
		return promo, err
	}
	return promo, nil
}

// ListPromos возвращает промокоды, новые сначала.
func (r *SubscriptionRepository) ListPromos(ctx context.Context, limit, offset int) ([]models.PromoCode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]models.PromoCode, 0)
	for rows.Next() {
		promo, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, promo)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return promos, nil
}

// promoRedeemable сообщает, можно ли еще активировать код в момент now.
func promoRedeemable(promo models.PromoCode, now time.Time) bool {
	if !promo.IsActive || promo.Redemptions >= promo.MaxRedemptions {
		return false
	}
	return promo.ExpiresAt == nil || now.Before(*promo.ExpiresAt)
}

func extend(ctx context.Context, tx pgx.Tx, userID uuid.UUID, plan string, days int) (models.Subscription, error) {
	if plan == "" {
		plan = models.PlanPro
	}

	subscription, err := scanSubscription(tx.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, status, plan, current_period_end)
		 VALUES ($1, $2, $3, NOW() + make_interval(days => $4))
		 ON CONFLICT (user_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     plan = EXCLUDED.plan,
		     current_period_end = GREATEST(COALESCE(subscriptions.current_period_end, NOW()), NOW()) + make_interval(days => $4),
		     updated_at = NOW()
		 RETURNING `+subscriptionColumns,
		userID, models.SubscriptionStatusActive, plan, days,
	))
	if err != nil && isForeignKeyViolation(err) {
		return subscription, ErrNotFound
	}
	return subscription, err
}

func scanSubscription(row pgx.Row) (models.Subscription, error) {
	var subscription models.Subscription
	err := row.Scan(
		&subscription.UserID,
		&subscription.Status,
		&subscription.Plan,
		&subscription.TrialEndsAt,
		&subscription.CurrentPeriodEnd,
		&subscription.UpdatedAt,
	)
	return subscription, err
}

func scanPromo(row pgx.Row) (models.PromoCode, error) {
	var promo models.PromoCode
	err := row.Scan(
		&promo.ID,
		&promo.Code,
		&promo.Days,
		&promo.MaxRedemptions,
		&promo.Redemptions,
		&promo.ExpiresAt,
		&promo.IsActive,
		&promo.CreatedAt,
	)
	return promo, err
}
