package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

const secret = "whsec_test"

// TestVerifySignature проверяет подпись с префиксом и без него.
func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	signature := Sign(secret, body)

	if err := VerifySignature(secret, body, signature); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := VerifySignature(secret, body, "sha256="+signature); err != nil {
		t.Fatalf("expected valid prefixed signature: %v", err)
	}
	if err := VerifySignature(secret, []byte(`{"id":"evt_2"}`), signature); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for tampered body, got %v", err)
	}
	if err := VerifySignature(secret, body, "zz"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for garbage, got %v", err)
	}
	if err := VerifySignature("", body, signature); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature without secret, got %v", err)
	}
}

// TestParseEvent проверяет разбор оплаты и отмены.
func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(`{"id":"evt_1","type":"payment.succeeded","user_id":"11111111-1111-1111-1111-111111111111","days":30,"amount":"299.00","currency":"RUB"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Plan != "pro" || event.Days != 30 || !event.Amount.Equal(decimal.NewFromInt(299)) {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := ParseEvent([]byte(`{"id":"evt_2","type":"subscription.canceled","user_id":"11111111-1111-1111-1111-111111111111"}`)); err != nil {
		t.Fatalf("unexpected error for cancel: %v", err)
	}
}

// TestParseEventRejects проверяет отказ на неполных событиях.
func TestParseEventRejects(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type":"payment.succeeded","user_id":"11111111-1111-1111-1111-111111111111","days":30}`,
		`{"id":"evt","type":"payment.succeeded","user_id":"11111111-1111-1111-1111-111111111111"}`,
		`{"id":"evt","type":"refund.created","user_id":"11111111-1111-1111-1111-111111111111"}`,
	}

	for _, body := range cases {
		if _, err := ParseEvent([]byte(body)); !errors.Is(err, ErrBadEvent) {
			t.Fatalf("%s: expected ErrBadEvent, got %v", body, err)
		}
	}
}
