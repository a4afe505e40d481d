// Package categories строит дерево категорий пользователя из плоского списка строк.
package categories

import (
	"github.com/google/uuid"

	"example.com/kapitallo/backend/internal/models"
)

// Node хранит категорию вместе с прямыми потомками.
type Node struct {
	models.Category
	Children []*Node `json:"children"`
}

// BuildTree собирает лес корневых категорий. Категория становится корнем, если у нее
// нет родителя, родитель указывает на нее саму, родитель не найден в списке или
// ссылка на родителя замыкает цикл. Порядок узлов совпадает с порядком входа.
func BuildTree(rows []models.Category) []*Node {
	index := make(map[uuid.UUID]*Node, len(rows))
	parents := make(map[uuid.UUID]uuid.UUID, len(rows))
	for _, row := range rows {
		index[row.ID] = &Node{Category: row, Children: []*Node{}}
		if row.ParentID != nil {
			parents[row.ID] = *row.ParentID
		}
	}

	roots := make([]*Node, 0, len(rows))
	for _, row := range rows {
		node := index[row.ID]
		if row.ParentID == nil || *row.ParentID == row.ID {
			roots = append(roots, node)
			continue
		}

		parent, ok := index[*row.ParentID]
		if !ok || reachesSelf(row.ID, *row.ParentID, parents) {
			roots = append(roots, node)
			continue
		}

		parent.Children = append(parent.Children, node)
	}

	return roots
}

// reachesSelf проходит по цепочке родителей начиная с parentID и сообщает, вернется ли
// она к id.
func reachesSelf(id, parentID uuid.UUID, parents map[uuid.UUID]uuid.UUID) bool {
	seen := map[uuid.UUID]struct{}{}
	current := parentID
	for {
		if current == id {
			return true
		}
		if _, ok := seen[current]; ok {
			return false
		}
		seen[current] = struct{}{}

		next, ok := parents[current]
		if !ok {
			return false
		}
		current = next
	}
}

// Index возвращает поиск категории по идентификатору.
func Index(rows []models.Category) map[uuid.UUID]models.Category {
	out := make(map[uuid.UUID]models.Category, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out
}

// CatalogueEntry описывает категорию для промпта модели.
type CatalogueEntry struct {
	ID    uuid.UUID              `json:"id"`
	Name  string                 `json:"name"`
	Type  models.TransactionType `json:"type"`
	Group string                 `json:"group,omitempty"`
}

// Catalogue превращает список категорий в контекст для сопоставления.
func Catalogue(rows []models.Category) []CatalogueEntry {
	byID := Index(rows)
	out := make([]CatalogueEntry, 0, len(rows))
	for _, row := range rows {
		entry := CatalogueEntry{ID: row.ID, Name: row.Name, Type: row.Type}
		if row.ParentID != nil && *row.ParentID != row.ID {
			if parent, ok := byID[*row.ParentID]; ok {
				entry.Group = parent.Name
			}
		}
		out = append(out, entry)
	}
	return out
}
