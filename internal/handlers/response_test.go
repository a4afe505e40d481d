package handlers

import (
	"testing"
	"time"
)

// TestParsePeriodValid проверяет корректный разбор периода.
func TestParsePeriodValid(t *testing.T) {
	start, end, err := parsePeriod("2024-01-01", "2024-01-31", time.Now())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if start.Format(dateLayout) != "2024-01-01" {
		t.Fatalf("unexpected start: %s", start.Format(dateLayout))
	}
	if end.Format(dateLayout) != "2024-01-31" {
		t.Fatalf("unexpected end: %s", end.Format(dateLayout))
	}
}

// TestParsePeriodDefaultsToCurrentMonth проверяет период по умолчанию.
func TestParsePeriodDefaultsToCurrentMonth(t *testing.T) {
	now := time.Date(2024, time.February, 17, 15, 0, 0, 0, time.UTC)

	start, end, err := parsePeriod("", "", now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if start.Format(dateLayout) != "2024-02-01" {
		t.Fatalf("unexpected start: %s", start.Format(dateLayout))
	}
	if end.Format(dateLayout) != "2024-02-29" {
		t.Fatalf("unexpected end: %s", end.Format(dateLayout))
	}
}

// TestParsePeriodInvalid проверяет ошибки при неверном периоде.
func TestParsePeriodInvalid(t *testing.T) {
	if _, _, err := parsePeriod("2024/01/01", "2024-01-31", time.Now()); err == nil {
		t.Fatal("expected error for invalid start format")
	}

	if _, _, err := parsePeriod("2024-02-01", "2024-01-31", time.Now()); err == nil {
		t.Fatal("expected error for end before start")
	}
}

// TestValidateHexColor проверяет валидацию hex-цвета.
func TestValidateHexColor(t *testing.T) {
	color, err := validateHexColor(" #aabbcc ")
	if err != nil {
		t.Fatalf("expected valid color, got %v", err)
	}
	if color != "#AABBCC" {
		t.Fatalf("expected upper-case color, got %s", color)
	}

	if _, err := validateHexColor("AABBCC"); err == nil {
		t.Fatal("expected error for missing #")
	}

	if _, err := validateHexColor("#XYZ123"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestTrimOptional(t *testing.T) {
	blank := "   "
	if trimOptional(&blank) != nil {
		t.Fatal("expected nil for blank value")
	}

	value := "  такси "
	trimmed := trimOptional(&value)
	if trimmed == nil || *trimmed != "такси" {
		t.Fatalf("unexpected trimmed value: %v", trimmed)
	}
}
