package ai

import (
	"errors"
	"testing"
)

// TestExtractJSON проверяет снятие ограждений и лишнего текста.
func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                         `{"a":1}`,
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		"```\n{\"a\":1}\n```":             `{"a":1}`,
		"Вот ответ: {\"a\":{\"b\":2}} ок": `{"a":{"b":2}}`,
		"no json here":                    "",
		"":                                "",
	}

	for input, want := range cases {
		if got := ExtractJSON(input); got != want {
			t.Fatalf("ExtractJSON(%q) = %q, want %q", input, got, want)
		}
	}
}

// TestParseJSON проверяет разбор и ошибку при отсутствии объекта.
func TestParseJSON(t *testing.T) {
	var target struct {
		Transactions []struct {
			Amount float64 `json:"amount"`
		} `json:"transactions"`
	}

	if err := ParseJSON("```json\n{\"transactions\":[{\"amount\":500}]}\n```", &target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(target.Transactions) != 1 || target.Transactions[0].Amount != 500 {
		t.Fatalf("unexpected result: %+v", target)
	}

	if err := ParseJSON("sorry", &target); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

// TestParseJSONStrict проверяет отказ на неизвестных полях и на втором объекте после первого.
func TestParseJSONStrict(t *testing.T) {
	type item struct {
		Amount float64 `json:"amount"`
	}
	var target struct {
		Transactions []item `json:"transactions"`
	}

	if err := ParseJSON(`{"transactions":[{"amount":1,"merchant":"taxi"}]}`, &target); err == nil {
		t.Fatal("expected error for unknown field")
	}
	if err := ParseJSON(`{"transactions":[]} and also {"transactions":[]}`, &target); !errors.Is(err, ErrTrailingJSON) {
		t.Fatalf("expected ErrTrailingJSON, got %v", err)
	}
	if err := ParseJSON("Ответ: {\"transactions\":[{\"amount\":2}]} готово", &target); err != nil {
		t.Fatalf("prose around a single object must be accepted: %v", err)
	}
}
