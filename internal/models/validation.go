package models

import (
	"reflect"

	"github.com/shopspring/decimal"
)

// DecimalValue позволяет go-playground/validator сравнивать decimal.Decimal
// числовыми правилами (gt, gte, lte).
func DecimalValue(field reflect.Value) interface{} {
	if value, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := value.Float64()
		return f
	}
	return nil
}
