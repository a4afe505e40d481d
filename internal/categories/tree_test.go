package categories

import (
	"testing"

	"github.com/google/uuid"

	"example.com/kapitallo/backend/internal/models"
)

func category(name string, parent *uuid.UUID) models.Category {
	return models.Category{ID: uuid.New(), Name: name, Type: models.TransactionTypeExpense, ParentID: parent}
}

// TestBuildTreeTwoLevels проверяет группировку подкатегорий под группами.
func TestBuildTreeTwoLevels(t *testing.T) {
	food := category("Еда", nil)
	transport := category("Транспорт", nil)
	coffee := category("Кофе", &food.ID)
	taxi := category("Такси", &transport.ID)
	groceries := category("Продукты", &food.ID)

	roots := BuildTree([]models.Category{coffee, food, taxi, transport, groceries})
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}

	if roots[0].ID != food.ID || roots[1].ID != transport.ID {
		t.Fatalf("unexpected root order: %s, %s", roots[0].Name, roots[1].Name)
	}

	if len(roots[0].Children) != 2 || roots[0].Children[0].ID != coffee.ID || roots[0].Children[1].ID != groceries.ID {
		t.Fatalf("unexpected children of food: %+v", roots[0].Children)
	}
	if len(roots[1].Children) != 1 || roots[1].Children[0].ID != taxi.ID {
		t.Fatalf("unexpected children of transport: %+v", roots[1].Children)
	}
}

// TestBuildTreeSelfReference проверяет, что категория-сама-себе-родитель становится корнем.
func TestBuildTreeSelfReference(t *testing.T) {
	self := category("Сломанная", nil)
	self.ParentID = &self.ID

	roots := BuildTree([]models.Category{self})
	if len(roots) != 1 || roots[0].ID != self.ID {
		t.Fatalf("expected self-referencing category at root, got %+v", roots)
	}
	if len(roots[0].Children) != 0 {
		t.Fatalf("expected no self loop in children, got %d children", len(roots[0].Children))
	}
}

// TestBuildTreeOrphan проверяет перенос категорий с висячим родителем в корень.
func TestBuildTreeOrphan(t *testing.T) {
	missing := uuid.New()
	orphan := category("Сирота", &missing)
	root := category("Доходы", nil)

	roots := BuildTree([]models.Category{orphan, root})
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
	if roots[0].ID != orphan.ID {
		t.Fatalf("expected orphan at root, got %s", roots[0].Name)
	}
}

// TestBuildTreeCycle проверяет, что взаимные ссылки не теряют категории.
func TestBuildTreeCycle(t *testing.T) {
	a := category("A", nil)
	b := category("B", &a.ID)
	a.ParentID = &b.ID

	roots := BuildTree([]models.Category{a, b})
	if len(roots) != 2 {
		t.Fatalf("expected both cyclic categories at root, got %d", len(roots))
	}
	for _, root := range roots {
		if len(root.Children) != 0 {
			t.Fatalf("expected no children for %s", root.Name)
		}
	}
}

// TestBuildTreeEmpty проверяет пустой вход.
func TestBuildTreeEmpty(t *testing.T) {
	roots := BuildTree(nil)
	if roots == nil || len(roots) != 0 {
		t.Fatalf("expected empty non-nil forest, got %v", roots)
	}
}

// TestCatalogueGroup проверяет заполнение имени группы.
func TestCatalogueGroup(t *testing.T) {
	food := category("Еда", nil)
	coffee := category("Кофе", &food.ID)

	entries := Catalogue([]models.Category{food, coffee})
	if entries[0].Group != "" {
		t.Fatalf("expected no group for root, got %q", entries[0].Group)
	}
	if entries[1].Group != "Еда" {
		t.Fatalf("expected group Еда, got %q", entries[1].Group)
	}
}
