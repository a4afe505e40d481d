package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

type SubscriptionStatus string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
	TransactionTypeSavings TransactionType = "savings"

	SubscriptionStatusTrial   SubscriptionStatus = "trial"
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusExpired SubscriptionStatus = "expired"

	PlanTrial = "trial"
	PlanPro   = "pro"

	DefaultCurrency = "RUB"
)

// Valid сообщает, является ли тип одним из income, expense, savings.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeSavings:
		return true
	default:
		return false
	}
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         *string   `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	CategoryID  *uuid.UUID      `json:"category_id"`
	Currency    string          `json:"currency"`
	Date        time.Time       `json:"date"`
	Description *string         `json:"description,omitempty"`
	Type        TransactionType `json:"type"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Category принадлежит пользователю; ParentID ссылается на группу (корневую категорию).
type Category struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Name      string          `json:"name"`
	Type      TransactionType `json:"type"`
	Icon      *string         `json:"icon,omitempty"`
	Color     *string         `json:"color,omitempty"`
	ParentID  *uuid.UUID      `json:"parent_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type Profile struct {
	UserID        uuid.UUID        `json:"user_id"`
	DisplayName   *string          `json:"display_name,omitempty"`
	Currency      string           `json:"currency"`
	FinancialGoal *string          `json:"financial_goal,omitempty"`
	MonthlyIncome *decimal.Decimal `json:"monthly_income,omitempty"`
	AdviceTone    *string          `json:"advice_tone,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type Subscription struct {
	UserID           uuid.UUID          `json:"user_id"`
	Status           SubscriptionStatus `json:"status"`
	Plan             string             `json:"plan"`
	TrialEndsAt      *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// CanPerformAction открывает доступ к голосовому вводу и чату: активная подписка
// с неистекшим периодом или незавершенный пробный период.
func (s Subscription) CanPerformAction(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive:
		return s.CurrentPeriodEnd == nil || now.Before(*s.CurrentPeriodEnd)
	case SubscriptionStatusTrial:
		return s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
	default:
		return false
	}
}

type PromoCode struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"code"`
	Days           int        `json:"days"`
	MaxRedemptions int        `json:"max_redemptions"`
	Redemptions    int        `json:"redemptions"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
}

type RefreshToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *uuid.UUID `json:"replaced_by,omitempty"`
}

type CategoryTotal struct {
	CategoryID *uuid.UUID      `json:"category_id"`
	Name       string          `json:"name"`
	Total      decimal.Decimal `json:"total"`
}

// FinanceSummary агрегирует операции пользователя за период для промпта ассистента.
type FinanceSummary struct {
	Since       time.Time       `json:"since"`
	Income      decimal.Decimal `json:"income"`
	Expense     decimal.Decimal `json:"expense"`
	Savings     decimal.Decimal `json:"savings"`
	TopExpenses []CategoryTotal `json:"top_expenses"`
	Recent      []RecentEntry   `json:"recent"`
}

type RecentEntry struct {
	Date         time.Time       `json:"date"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	CategoryName *string         `json:"category_name,omitempty"`
	Description  *string         `json:"description,omitempty"`
}

// ParsedTransaction описывает операцию, извлеченную из голосовой заметки, до сохранения.
type ParsedTransaction struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	CategoryID  *uuid.UUID      `json:"category_id"`
	Type        TransactionType `json:"type" validate:"oneof=income expense savings"`
	Description string          `json:"description" validate:"required,max=255"`
}
