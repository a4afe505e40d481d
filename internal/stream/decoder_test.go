package stream

import (
	"errors"
	"strings"
	"testing"
)

const sample = "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Привет\"}}]}\n\n" +
	": keep-alive\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\", расходы на такси \"}}]}\r\n\r\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"выросли на 20%.\"}}]}\n\n" +
	"data: [DONE]\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"после конца\"}}]}\n\n"

const expected = "Привет, расходы на такси выросли на 20%."

// TestDecoderWhole проверяет разбор потока, пришедшего одним куском.
func TestDecoderWhole(t *testing.T) {
	decoder := NewDecoder()
	deltas, err := decoder.Write([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d: %q", len(deltas), deltas)
	}
	if decoder.Content() != expected {
		t.Fatalf("unexpected content: %q", decoder.Content())
	}
	if !decoder.Done() {
		t.Fatal("expected decoder to be done")
	}
}

// TestDecoderChunkBoundaries проверяет, что разбиение на куски в любом месте
// (включая середину JSON и многобайтовых символов) дает тот же текст.
func TestDecoderChunkBoundaries(t *testing.T) {
	payload := []byte(sample)
	for split := 1; split < len(payload); split++ {
		decoder := NewDecoder()
		var collected strings.Builder

		for _, part := range [][]byte{payload[:split], payload[split:]} {
			deltas, err := decoder.Write(part)
			if err != nil {
				t.Fatalf("split %d: unexpected error: %v", split, err)
			}
			for _, delta := range deltas {
				collected.WriteString(delta)
			}
		}

		if decoder.Content() != expected {
			t.Fatalf("split %d: unexpected content %q", split, decoder.Content())
		}
		if collected.String() != expected {
			t.Fatalf("split %d: deltas do not add up: %q", split, collected.String())
		}
	}
}

// TestDecoderByteByByte проверяет посимвольную подачу.
func TestDecoderByteByByte(t *testing.T) {
	decoder := NewDecoder()
	for _, b := range []byte(sample) {
		if _, err := decoder.Write([]byte{b}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if decoder.Content() != expected {
		t.Fatalf("unexpected content: %q", decoder.Content())
	}
}

// TestDecoderHeldBackLine проверяет склейку JSON, разорванного переводом строки.
func TestDecoderHeldBackLine(t *testing.T) {
	decoder := NewDecoder()

	deltas, err := decoder.Write([]byte("data: {\"choices\":[{\"delta\":\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) != 0 {
		t.Fatalf("expected incomplete frame to be held, got %q", deltas)
	}

	deltas, err = decoder.Write([]byte("{\"content\":\"кофе\"}}]}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) != 1 || deltas[0] != "кофе" {
		t.Fatalf("expected merged delta, got %q", deltas)
	}
	if decoder.Dropped() != 0 {
		t.Fatalf("expected nothing dropped, got %d", decoder.Dropped())
	}
}

// TestDecoderBrokenFrameDoesNotStall проверяет, что неразбираемый фрагмент не блокирует поток.
func TestDecoderBrokenFrameDoesNotStall(t *testing.T) {
	decoder := NewDecoder()
	input := "data: {\"choices\":[{\"delta\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
		"data: [DONE]\n"

	if _, err := decoder.Write([]byte(input)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decoder.Content() != "ok" {
		t.Fatalf("unexpected content: %q", decoder.Content())
	}
	if decoder.Dropped() != 1 {
		t.Fatalf("expected 1 dropped fragment, got %d", decoder.Dropped())
	}
}

// TestDecoderUpstreamError проверяет ошибку внутри потока.
func TestDecoderUpstreamError(t *testing.T) {
	decoder := NewDecoder()
	_, err := decoder.Write([]byte("data: {\"error\":{\"message\":\"rate limit\"}}\n"))

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if upstream.Message != "rate limit" {
		t.Fatalf("unexpected message: %s", upstream.Message)
	}
}

// TestConsumeWithoutTrailingNewline проверяет разбор последней строки без перевода строки.
func TestConsumeWithoutTrailingNewline(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}"

	var deltas []string
	content, err := Consume(strings.NewReader(input), func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if content != "ab" || len(deltas) != 2 {
		t.Fatalf("unexpected result: %q %q", content, deltas)
	}
}

// TestConsumeStopsOnCallbackError проверяет остановку по ошибке получателя.
func TestConsumeStopsOnCallbackError(t *testing.T) {
	stop := errors.New("client gone")
	_, err := Consume(strings.NewReader(sample), func(string) error {
		return stop
	})

	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
