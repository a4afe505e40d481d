package repository

import (
	"github.com/shopspring/decimal"
)

// NUMERIC читается как текст (amount::text) и разбирается без потери точности.
func parseDecimal(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(value)
}

func parseNullableDecimal(value *string) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(*value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func nullableDecimalText(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	text := value.String()
	return &text
}
