package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrNoJSON       = errors.New("ai response does not contain json")
	ErrTrailingJSON = errors.New("ai response has data after the json object")
)

// ParseJSON извлекает JSON-объект из ответа модели и строго раскладывает его в target:
// неизвестные поля и данные после объекта считаются ошибкой.
func ParseJSON(input string, target interface{}) error {
	payload := ExtractJSON(input)
	if payload == "" {
		return ErrNoJSON
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decode ai json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingJSON
	}
	return nil
}

// ExtractJSON снимает markdown-ограждения и лишний текст вокруг объекта.
func ExtractJSON(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
		trimmed = strings.TrimSpace(trimmed)
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return trimmed[start : end+1]
}
