package commit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/models"
)

type fakeStore struct {
	calls int
	rows  []models.Transaction
}

func (s *fakeStore) CreateBatch(_ context.Context, _ uuid.UUID, rows []models.Transaction) ([]models.Transaction, error) {
	s.calls++
	s.rows = append(s.rows, rows...)
	return rows, nil
}

var (
	userID      = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	transportID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	foodID      = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func testContext() Context {
	return Context{
		UserID:   userID,
		Currency: "rub",
		Categories: []models.Category{
			{ID: transportID, Name: "Транспорт", Type: models.TransactionTypeExpense},
			{ID: foodID, Name: "Кафе", Type: models.TransactionTypeExpense},
		},
	}
}

func parsed(amount int64, categoryID *uuid.UUID, description string) models.ParsedTransaction {
	return models.ParsedTransaction{
		Amount:      decimal.NewFromInt(amount),
		CategoryID:  categoryID,
		Type:        models.TransactionTypeExpense,
		Description: description,
	}
}

// TestCommitCreatesRowPerTransaction проверяет сценарий "2000 на такси и 500 на кофе".
func TestCommitCreatesRowPerTransaction(t *testing.T) {
	store := &fakeStore{}
	committer := NewCommitter(store, time.FixedZone("MSK", 3*3600))
	committer.now = func() time.Time { return time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC) }

	created, err := committer.Commit(context.Background(), testContext(), []models.ParsedTransaction{
		parsed(2000, &transportID, "Такси"),
		parsed(500, &foodID, "Кофе"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.calls != 1 || len(created) != 2 {
		t.Fatalf("expected one atomic batch of 2 rows, got %d calls and %d rows", store.calls, len(created))
	}

	wantDate := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	for _, row := range store.rows {
		if !row.Date.Equal(wantDate) {
			t.Fatalf("expected date %s in user location, got %s", wantDate, row.Date)
		}
		if row.Currency != "RUB" {
			t.Fatalf("expected base currency RUB, got %s", row.Currency)
		}
		if row.UserID != userID {
			t.Fatalf("unexpected user id: %s", row.UserID)
		}
	}
	if *store.rows[0].CategoryID != transportID || *store.rows[0].Description != "Такси" {
		t.Fatalf("unexpected first row: %+v", store.rows[0])
	}
	if !store.rows[1].Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected amount: %s", store.rows[1].Amount)
	}
}

// TestCommitBlocksWholeBatch проверяет, что при одной плохой категории не сохраняется ничего.
func TestCommitBlocksWholeBatch(t *testing.T) {
	dangling := uuid.New()
	cases := map[string][]models.ParsedTransaction{
		"null category": {
			parsed(2000, &transportID, "Такси"),
			parsed(500, nil, "Кофе"),
		},
		"dangling category": {
			parsed(2000, &dangling, "Такси"),
			parsed(500, &foodID, "Кофе"),
		},
	}

	for name, batch := range cases {
		store := &fakeStore{}
		_, err := NewCommitter(store, nil).Commit(context.Background(), testContext(), batch)

		var missing *MissingCategoriesError
		if !errors.As(err, &missing) {
			t.Fatalf("%s: expected MissingCategoriesError, got %v", name, err)
		}
		if len(missing.Indexes) != 1 {
			t.Fatalf("%s: expected one offending index, got %v", name, missing.Indexes)
		}
		if store.calls != 0 || len(store.rows) != 0 {
			t.Fatalf("%s: expected nothing persisted", name)
		}
	}
}

// TestGateReportsAllOffenders проверяет перечисление всех проблемных операций.
func TestGateReportsAllOffenders(t *testing.T) {
	dangling := uuid.New()
	err := Gate([]models.ParsedTransaction{
		parsed(1, nil, "a"),
		parsed(2, &foodID, "b"),
		parsed(3, &dangling, "c"),
	}, map[uuid.UUID]models.Category{foodID: {ID: foodID}})

	var missing *MissingCategoriesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingCategoriesError, got %v", err)
	}
	if len(missing.Indexes) != 2 || missing.Indexes[0] != 0 || missing.Indexes[1] != 2 {
		t.Fatalf("unexpected indexes: %v", missing.Indexes)
	}
}

// TestGateEmptyBatch проверяет пустой пакет.
func TestGateEmptyBatch(t *testing.T) {
	if err := Gate(nil, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}
