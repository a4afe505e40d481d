package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/categories"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/notifications"
	"example.com/kapitallo/backend/internal/repository"
)

// CategoryStore описывает хранилище категорий пользователя.
type CategoryStore interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.Category, error)
	Create(ctx context.Context, userID uuid.UUID, input repository.CategoryInput) (models.Category, error)
	Update(ctx context.Context, userID, id uuid.UUID, input repository.CategoryInput) (models.Category, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type CategoryHandler struct {
	Categories CategoryStore
	Notifier   notifications.Publisher
}

// NewCategoryHandler создает обработчик категорий.
func NewCategoryHandler(store CategoryStore, notifier notifications.Publisher) *CategoryHandler {
	return &CategoryHandler{Categories: store, Notifier: notifier}
}

type CategoryRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Type     string  `json:"type" validate:"required,oneof=income expense savings"`
	Icon     *string `json:"icon" validate:"omitempty,max=16"`
	Color    *string `json:"color"`
	ParentID *string `json:"parent_id"`
}

type CategoryListResponse struct {
	Categories []models.Category `json:"categories"`
}

type CategoryTreeResponse struct {
	Categories []*categories.Node `json:"categories"`
}

// List возвращает плоский список категорий.
func (h *CategoryHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	rows, err := h.Categories.List(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, CategoryListResponse{Categories: rows})
}

// Tree возвращает категории, сгруппированные по родителям.
func (h *CategoryHandler) Tree(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	rows, err := h.Categories.List(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, CategoryTreeResponse{Categories: categories.BuildTree(rows)})
}

// Create создает категорию или подкатегорию.
func (h *CategoryHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	input, err := h.bindInput(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	category, err := h.Categories.Create(c.Request().Context(), userID, input)
	if err != nil {
		return categoryError(c, err)
	}

	publishEvent(h.Notifier, userID, notifications.EventCategoriesChanged, map[string]string{"category_id": category.ID.String(), "action": "created"})
	return c.JSON(http.StatusCreated, category)
}

// Update меняет категорию.
func (h *CategoryHandler) Update(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid category id")
	}

	input, err := h.bindInput(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	category, err := h.Categories.Update(c.Request().Context(), userID, id, input)
	if err != nil {
		return categoryError(c, err)
	}

	publishEvent(h.Notifier, userID, notifications.EventCategoriesChanged, map[string]string{"category_id": category.ID.String(), "action": "updated"})
	return c.JSON(http.StatusOK, category)
}

// Delete удаляет категорию.
func (h *CategoryHandler) Delete(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid category id")
	}

	if err := h.Categories.Delete(c.Request().Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "category not found")
		}
		return serverError(c)
	}

	publishEvent(h.Notifier, userID, notifications.EventCategoriesChanged, map[string]string{"category_id": id.String(), "action": "deleted"})
	return c.NoContent(http.StatusNoContent)
}

func (h *CategoryHandler) bindInput(c echo.Context) (repository.CategoryInput, error) {
	var req CategoryRequest
	if err := c.Bind(&req); err != nil {
		return repository.CategoryInput{}, errors.New("invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return repository.CategoryInput{}, errors.New("validation failed")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return repository.CategoryInput{}, errors.New("name is required")
	}

	input := repository.CategoryInput{
		Name: name,
		Type: models.TransactionType(req.Type),
		Icon: trimOptional(req.Icon),
	}

	if color := trimOptional(req.Color); color != nil {
		normalized, err := validateHexColor(*color)
		if err != nil {
			return repository.CategoryInput{}, err
		}
		input.Color = &normalized
	}

	if parent := trimOptional(req.ParentID); parent != nil {
		parentID, err := uuid.Parse(*parent)
		if err != nil {
			return repository.CategoryInput{}, errors.New("invalid parent_id")
		}
		input.ParentID = &parentID
	}

	return input, nil
}

func categoryError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "category not found")
	case errors.Is(err, repository.ErrCategoryMissing):
		return badRequest(c, "parent category not found")
	case errors.Is(err, repository.ErrInvalid):
		return badRequest(c, "parent must be a root category of the same type")
	default:
		return serverError(c)
	}
}
