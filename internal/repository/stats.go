package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/models"
)

const (
	summaryTopCategories = 5
	summaryRecentEntries = 10
)

type StatsRepository struct {
	db *pgxpool.Pool
}

type OverviewStats struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Income       decimal.Decimal `json:"income"`
	Expense      decimal.Decimal `json:"expense"`
	Savings      decimal.Decimal `json:"savings"`
	Balance      decimal.Decimal `json:"balance"`
	Transactions int             `json:"transactions"`
}

type CategorySpend struct {
	CategoryID *uuid.UUID             `json:"category_id"`
	Name       string                 `json:"name"`
	Type       models.TransactionType `json:"type"`
	Total      decimal.Decimal        `json:"total"`
}

type MonthlyTotals struct {
	Month   time.Time       `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Savings decimal.Decimal `json:"savings"`
}

// NewStatsRepository создает репозиторий статистики.
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Overview возвращает итоги по типам операций за период [from, to].
// Баланс считается как доходы минус расходы минус накопления.
func (r *StatsRepository) Overview(ctx context.Context, userID uuid.UUID, from, to time.Time) (OverviewStats, error) {
	stats := OverviewStats{From: from, To: to}
	if to.Before(from) {
		return stats, ErrInvalid
	}

	var income, expense, savings string
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0)::text,
		        COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0)::text,
		        COALESCE(SUM(amount) FILTER (WHERE type = 'savings'), 0)::text,
		        COUNT(*)
		 FROM transactions
		 WHERE user_id = $1 AND date BETWEEN $2 AND $3`,
		userID, from, to,
	).Scan(&income, &expense, &savings, &stats.Transactions)
	if err != nil {
		return stats, err
	}

	if stats.Income, err = parseDecimal(income); err != nil {
		return stats, err
	}
	if stats.Expense, err = parseDecimal(expense); err != nil {
		return stats, err
	}
	if stats.Savings, err = parseDecimal(savings); err != nil {
		return stats, err
	}
	stats.Balance = stats.Income.Sub(stats.Expense).Sub(stats.Savings)

	return stats, nil
}

// SpendingByCategory возвращает суммы по категориям за период, крупные сначала.
// Операции без категории собираются в одну строку с пустым CategoryID.
func (r *StatsRepository) SpendingByCategory(ctx context.Context, userID uuid.UUID, txType models.TransactionType, from, to time.Time) ([]CategorySpend, error) {
	return r.categoryTotals(ctx, userID, txType, from, to, 0)
}

// MonthlyTrend возвращает помесячные итоги за последние months месяцев, новые сначала.
func (r *StatsRepository) MonthlyTrend(ctx context.Context, userID uuid.UUID, months int) ([]MonthlyTotals, error) {
	if months <= 0 {
		return nil, ErrInvalid
	}

	rows, err := r.db.Query(ctx,
		`SELECT date_trunc('month', date)::date AS month,
		        COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0)::text,
		        COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0)::text,
		        COALESCE(SUM(amount) FILTER (WHERE type = 'savings'), 0)::text
		 FROM transactions
		 WHERE user_id = $1
		   AND date >= date_trunc('month', CURRENT_DATE) - make_interval(months => $2 - 1)
		 GROUP BY month
		 ORDER BY month DESC`,
		userID, months,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]MonthlyTotals, 0)
	for rows.Next() {
		var row MonthlyTotals
		var income, expense, savings string
		if err := rows.Scan(&row.Month, &income, &expense, &savings); err != nil {
			return nil, err
		}
		if row.Income, err = parseDecimal(income); err != nil {
			return nil, err
		}
		if row.Expense, err = parseDecimal(expense); err != nil {
			return nil, err
		}
		if row.Savings, err = parseDecimal(savings); err != nil {
			return nil, err
		}
		items = append(items, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// ChatSummary собирает сводку для промпта ассистента: итоги с since,
// топ-5 категорий расходов и последние 10 операций.
func (r *StatsRepository) ChatSummary(ctx context.Context, userID uuid.UUID, since time.Time) (models.FinanceSummary, error) {
	summary := models.FinanceSummary{Since: since}

	overview, err := r.Overview(ctx, userID, since, time.Now())
	if err != nil {
		return summary, err
	}
	summary.Income = overview.Income
	summary.Expense = overview.Expense
	summary.Savings = overview.Savings

	top, err := r.categoryTotals(ctx, userID, models.TransactionTypeExpense, since, time.Now(), summaryTopCategories)
	if err != nil {
		return summary, err
	}
	summary.TopExpenses = make([]models.CategoryTotal, 0, len(top))
	for _, row := range top {
		summary.TopExpenses = append(summary.TopExpenses, models.CategoryTotal{
			CategoryID: row.CategoryID,
			Name:       row.Name,
			Total:      row.Total,
		})
	}

	rows, err := r.db.Query(ctx,
		`SELECT t.date, t.type, t.amount::text, t.currency, c.name, t.description
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = $1 AND t.date >= $2
		 ORDER BY t.date DESC, t.created_at DESC
		 LIMIT $3`,
		userID, since, summaryRecentEntries,
	)
	if err != nil {
		return summary, err
	}
	defer rows.Close()

	summary.Recent = make([]models.RecentEntry, 0)
	for rows.Next() {
		var entry models.RecentEntry
		var amount string
		if err := rows.Scan(&entry.Date, &entry.Type, &amount, &entry.Currency, &entry.CategoryName, &entry.Description); err != nil {
			return summary, err
		}
		if entry.Amount, err = parseDecimal(amount); err != nil {
			return summary, err
		}
		summary.Recent = append(summary.Recent, entry)
	}

	if err := rows.Err(); err != nil {
		return summary, err
	}

	return summary, nil
}

func (r *StatsRepository) categoryTotals(ctx context.Context, userID uuid.UUID, txType models.TransactionType, from, to time.Time, limit int) ([]CategorySpend, error) {
	query := `SELECT t.category_id, COALESCE(c.name, ''), t.type, SUM(t.amount)::text AS total
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = $1 AND t.type = $2 AND t.date BETWEEN $3 AND $4
		 GROUP BY t.category_id, c.name, t.type
		 ORDER BY SUM(t.amount) DESC`
	args := []interface{}{userID, txType, from, to}
	if limit > 0 {
		query += ` LIMIT $5`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spending := make([]CategorySpend, 0)
	for rows.Next() {
		var row CategorySpend
		var total string
		if err := rows.Scan(&row.CategoryID, &row.Name, &row.Type, &total); err != nil {
			return nil, err
		}
		if row.Total, err = parseDecimal(total); err != nil {
			return nil, err
		}
		spending = append(spending, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return spending, nil
}
