// Package commit сохраняет подтвержденные пользователем операции из голосовой заметки.
package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/kapitallo/backend/internal/categories"
	"example.com/kapitallo/backend/internal/models"
)

var ErrEmptyBatch = errors.New("no transactions to commit")

// MissingCategoriesError блокирует сохранение всего пакета: у перечисленных
// операций категория не указана или больше не существует.
type MissingCategoriesError struct {
	Indexes []int
	Reasons []string
}

func (e *MissingCategoriesError) Error() string {
	parts := make([]string, 0, len(e.Indexes))
	for i, idx := range e.Indexes {
		parts = append(parts, fmt.Sprintf("#%d: %s", idx, e.Reasons[i]))
	}
	return "transactions without a valid category: " + strings.Join(parts, ", ")
}

// Gate пропускает пакет только целиком: если хотя бы у одной операции нет
// существующей категории, возвращается *MissingCategoriesError.
func Gate(txs []models.ParsedTransaction, index map[uuid.UUID]models.Category) error {
	if len(txs) == 0 {
		return ErrEmptyBatch
	}

	missing := &MissingCategoriesError{}
	for i, tx := range txs {
		switch {
		case tx.CategoryID == nil:
			missing.Indexes = append(missing.Indexes, i)
			missing.Reasons = append(missing.Reasons, "category is not set")
		default:
			if _, ok := index[*tx.CategoryID]; !ok {
				missing.Indexes = append(missing.Indexes, i)
				missing.Reasons = append(missing.Reasons, "category does not exist")
			}
		}
	}

	if len(missing.Indexes) > 0 {
		return missing
	}
	return nil
}

// Store сохраняет пакет операций в одной транзакции базы.
type Store interface {
	CreateBatch(ctx context.Context, userID uuid.UUID, rows []models.Transaction) ([]models.Transaction, error)
}

type Context struct {
	UserID     uuid.UUID
	Currency   string
	Categories []models.Category
}

type Committer struct {
	store    Store
	location *time.Location
	now      func() time.Time
}

// NewCommitter создает сервис подтверждения. location задает, какой день считать сегодняшним.
func NewCommitter(store Store, location *time.Location) *Committer {
	if location == nil {
		location = time.UTC
	}
	return &Committer{store: store, location: location, now: time.Now}
}

// Commit проверяет категории и атомарно сохраняет по одной строке на каждую операцию,
// датой сегодняшнего дня и в базовой валюте пользователя.
func (c *Committer) Commit(ctx context.Context, cc Context, txs []models.ParsedTransaction) ([]models.Transaction, error) {
	if cc.UserID == uuid.Nil {
		return nil, errors.New("user id is required")
	}
	if err := Gate(txs, categories.Index(cc.Categories)); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(cc.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}

	local := c.now().In(c.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	rows := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		categoryID := *tx.CategoryID
		row := models.Transaction{
			UserID:     cc.UserID,
			Amount:     tx.Amount,
			CategoryID: &categoryID,
			Currency:   currency,
			Date:       today,
			Type:       tx.Type,
		}
		if description := strings.TrimSpace(tx.Description); description != "" {
			row.Description = &description
		}
		rows = append(rows, row)
	}

	return c.store.CreateBatch(ctx, cc.UserID, rows)
}
