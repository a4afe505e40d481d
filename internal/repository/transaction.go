package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/kapitallo/backend/internal/models"
)

type TransactionRepository struct {
	db *pgxpool.Pool
}

type TransactionFilter struct {
	From       *time.Time
	To         *time.Time
	Type       *models.TransactionType
	CategoryID *uuid.UUID
}

const transactionColumns = `id, user_id, amount::text, category_id, currency, date, description, type, created_at`

// NewTransactionRepository создает репозиторий операций.
func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// List возвращает операции пользователя по фильтру, новые сначала.
func (r *TransactionRepository) List(ctx context.Context, userID uuid.UUID, filter TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	where, args := buildTransactionWhere(userID, filter)

	limitParam := len(args) + 1
	offsetParam := len(args) + 2
	query := fmt.Sprintf("SELECT %s FROM transactions%s ORDER BY date DESC, created_at DESC LIMIT $%d OFFSET $%d",
		transactionColumns, where, limitParam, offsetParam)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Transaction, 0)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, transaction)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Count возвращает количество операций по фильтру.
func (r *TransactionRepository) Count(ctx context.Context, userID uuid.UUID, filter TransactionFilter) (int, error) {
	where, args := buildTransactionWhere(userID, filter)

	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Get возвращает операцию пользователя.
func (r *TransactionRepository) Get(ctx context.Context, userID, id uuid.UUID) (models.Transaction, error) {
	transaction, err := scanTransaction(r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transaction, ErrNotFound
		}
		return transaction, err
	}
	return transaction, nil
}

// Create сохраняет одну операцию, введенную вручную.
func (r *TransactionRepository) Create(ctx context.Context, userID uuid.UUID, row models.Transaction) (models.Transaction, error) {
	created, err := r.CreateBatch(ctx, userID, []models.Transaction{row})
	if err != nil {
		return models.Transaction{}, err
	}
	return created[0], nil
}

// CreateBatch сохраняет все операции в одной транзакции: либо все строки, либо ни одной.
// Каждая категория должна существовать и принадлежать пользователю.
func (r *TransactionRepository) CreateBatch(ctx context.Context, userID uuid.UUID, rows []models.Transaction) ([]models.Transaction, error) {
	if len(rows) == 0 {
		return nil, ErrInvalid
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := checkCategoriesOwned(ctx, tx, userID, rows); err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		if !row.Amount.IsPositive() || !row.Type.Valid() {
			return nil, ErrInvalid
		}
		batch.Queue(
			`INSERT INTO transactions (user_id, amount, category_id, currency, date, description, type)
			 VALUES ($1, $2::numeric, $3, $4, $5, $6, $7)
			 RETURNING `+transactionColumns,
			userID, row.Amount.String(), row.CategoryID, row.Currency, row.Date, row.Description, row.Type,
		)
	}

	results := tx.SendBatch(ctx, batch)
	created := make([]models.Transaction, 0, len(rows))
	for range rows {
		transaction, err := scanTransaction(results.QueryRow())
		if err != nil {
			_ = results.Close()
			if isForeignKeyViolation(err) {
				return nil, ErrCategoryMissing
			}
			return nil, err
		}
		created = append(created, transaction)
	}
	if err := results.Close(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return created, nil
}

// Update меняет операцию пользователя.
func (r *TransactionRepository) Update(ctx context.Context, userID, id uuid.UUID, row models.Transaction) (models.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Transaction{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := checkCategoriesOwned(ctx, tx, userID, []models.Transaction{row}); err != nil {
		return models.Transaction{}, err
	}

	transaction, err := scanTransaction(tx.QueryRow(ctx,
		`UPDATE transactions
		 SET amount = $3::numeric, category_id = $4, currency = $5, date = $6, description = $7, type = $8
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+transactionColumns,
		id, userID, row.Amount.String(), row.CategoryID, row.Currency, row.Date, row.Description, row.Type,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transaction, ErrNotFound
		}
		return transaction, err
	}

	if err := tx.Commit(ctx); err != nil {
		return transaction, err
	}

	return transaction, nil
}

// Delete удаляет операцию пользователя.
func (r *TransactionRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func checkCategoriesOwned(ctx context.Context, tx pgx.Tx, userID uuid.UUID, rows []models.Transaction) error {
	ids := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for _, row := range rows {
		if row.CategoryID == nil {
			continue
		}
		if _, ok := seen[*row.CategoryID]; ok {
			continue
		}
		seen[*row.CategoryID] = struct{}{}
		ids = append(ids, *row.CategoryID)
	}
	if len(ids) == 0 {
		return nil
	}

	var found int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM categories WHERE user_id = $1 AND id = ANY($2) FOR SHARE`,
		userID, ids,
	).Scan(&found)
	if err != nil {
		return err
	}
	if found != len(ids) {
		return ErrCategoryMissing
	}
	return nil
}

func buildTransactionWhere(userID uuid.UUID, filter TransactionFilter) (string, []interface{}) {
	args := []interface{}{userID}
	clauses := []string{"user_id = $1"}

	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("date >= $%d", len(args)))
	}

	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("date <= $%d", len(args)))
	}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}

	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		clauses = append(clauses, fmt.Sprintf("category_id = $%d", len(args)))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var transaction models.Transaction
	var amount string
	err := row.Scan(
		&transaction.ID,
		&transaction.UserID,
		&amount,
		&transaction.CategoryID,
		&transaction.Currency,
		&transaction.Date,
		&transaction.Description,
		&transaction.Type,
		&transaction.CreatedAt,
	)
	if err != nil {
		return transaction, err
	}

	transaction.Amount, err = parseDecimal(amount)
	return transaction, err
}
