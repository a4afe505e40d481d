package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/kapitallo/backend/internal/models"
)

type CategoryRepository struct {
	db *pgxpool.Pool
}

type CategoryInput struct {
	Name     string
	Type     models.TransactionType
	Icon     *string
	Color    *string
	ParentID *uuid.UUID
}

type defaultCategory struct {
	Name     string
	Type     models.TransactionType
	Icon     string
	Children []string
}

var defaultCategories = []defaultCategory{
	{Name: "Еда", Type: models.TransactionTypeExpense, Icon: "🍔", Children: []string{"Продукты", "Кафе"}},
	{Name: "Транспорт", Type: models.TransactionTypeExpense, Icon: "🚕", Children: []string{"Такси", "Общественный транспорт"}},
	{Name: "Жилье", Type: models.TransactionTypeExpense, Icon: "🏠", Children: []string{"Аренда", "Коммунальные услуги"}},
	{Name: "Развлечения", Type: models.TransactionTypeExpense, Icon: "🎬"},
	{Name: "Здоровье", Type: models.TransactionTypeExpense, Icon: "💊"},
	{Name: "Зарплата", Type: models.TransactionTypeIncome, Icon: "💼"},
	{Name: "Подработка", Type: models.TransactionTypeIncome, Icon: "🧰"},
	{Name: "Накопления", Type: models.TransactionTypeSavings, Icon: "🏦"},
}

const categoryColumns = `id, user_id, name, type, icon, color, parent_id, created_at`

// NewCategoryRepository создает репозиторий категорий.
func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// List возвращает плоский список категорий пользователя.
func (r *CategoryRepository) List(ctx context.Context, userID uuid.UUID) ([]models.Category, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+categoryColumns+`
		 FROM categories
		 WHERE user_id = $1
		 ORDER BY created_at, name`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, category)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Get возвращает категорию пользователя.
func (r *CategoryRepository) Get(ctx context.Context, userID, id uuid.UUID) (models.Category, error) {
	category, err := scanCategory(r.db.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return category, ErrNotFound
		}
		return category, err
	}
	return category, nil
}

// Create создает категорию. Родителем может быть только корневая категория того же типа.
func (r *CategoryRepository) Create(ctx context.Context, userID uuid.UUID, input CategoryInput) (models.Category, error) {
	var category models.Category

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return category, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if input.ParentID != nil {
		if err := checkParent(ctx, tx, userID, uuid.Nil, *input.ParentID, input.Type); err != nil {
			return category, err
		}
	}

	category, err = scanCategory(tx.QueryRow(ctx,
		`INSERT INTO categories (user_id, name, type, icon, color, parent_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+categoryColumns,
		userID, input.Name, input.Type, input.Icon, input.Color, input.ParentID,
	))
	if err != nil {
		return category, err
	}

	if err := tx.Commit(ctx); err != nil {
		return category, err
	}

	return category, nil
}

// Update меняет категорию. Категория с подкатегориями не может сама стать подкатегорией.
func (r *CategoryRepository) Update(ctx context.Context, userID, id uuid.UUID, input CategoryInput) (models.Category, error) {
	var category models.Category

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return category, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if input.ParentID != nil {
		if err := checkParent(ctx, tx, userID, id, *input.ParentID, input.Type); err != nil {
			return category, err
		}

		var hasChildren bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM categories WHERE parent_id = $1 AND user_id = $2)`,
			id, userID,
		).Scan(&hasChildren); err != nil {
			return category, err
		}
		if hasChildren {
			return category, ErrInvalid
		}
	}

	category, err = scanCategory(tx.QueryRow(ctx,
		`UPDATE categories
		 SET name = $3, type = $4, icon = $5, color = $6, parent_id = $7
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+categoryColumns,
		id, userID, input.Name, input.Type, input.Icon, input.Color, input.ParentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return category, ErrNotFound
		}
		return category, err
	}

	if err := tx.Commit(ctx); err != nil {
		return category, err
	}

	return category, nil
}

// Delete удаляет категорию. Подкатегории становятся корневыми, операции остаются без категории.
func (r *CategoryRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM categories WHERE id = $1 AND user_id = $2`,
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

func checkParent(ctx context.Context, tx pgx.Tx, userID, id, parentID uuid.UUID, txType models.TransactionType) error {
	if parentID == id {
		return ErrInvalid
	}

	var parentType models.TransactionType
	var grandParent *uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT type, parent_id FROM categories WHERE id = $1 AND user_id = $2 FOR SHARE`,
		parentID, userID,
	).Scan(&parentType, &grandParent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCategoryMissing
		}
		return err
	}

	if grandParent != nil || parentType != txType {
		return ErrInvalid
	}
	return nil
}

// seedCategories создает стартовый набор групп и подкатегорий нового пользователя.
func seedCategories(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	for _, group := range defaultCategories {
		groupID := uuid.New()
		icon := group.Icon
		_, err := tx.Exec(ctx,
			`INSERT INTO categories (id, user_id, name, type, icon)
			 VALUES ($1, $2, $3, $4, $5)`,
			groupID, userID, group.Name, group.Type, icon,
		)
		if err != nil {
			return err
		}

		for _, child := range group.Children {
			_, err = tx.Exec(ctx,
				`INSERT INTO categories (id, user_id, name, type, parent_id)
				 VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), userID, child, group.Type, groupID,
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func scanCategory(row pgx.Row) (models.Category, error) {
	var category models.Category
	err := row.Scan(
		&category.ID,
		&category.UserID,
		&category.Name,
		&category.Type,
		&category.Icon,
		&category.Color,
		&category.ParentID,
		&category.CreatedAt,
	)
	return category, err
}
