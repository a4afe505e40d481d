package server

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"example.com/kapitallo/backend/internal/models"
)

type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator создает валидатор на базе go-playground/validator.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterCustomTypeFunc(models.DecimalValue, decimal.Decimal{})
	return &CustomValidator{validator: v}
}

// Validate запускает проверку структуры по тегам.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
