package notifications

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestHubPublishSubscribe проверяет доставку событий подписчику.
func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	ch, unsubscribe := hub.Subscribe(userID)
	defer unsubscribe()

	hub.Publish(userID, Event{Type: "test"})

	select {
	case event := <-ch:
		if event.Type != "test" {
			t.Fatalf("expected event type test, got %s", event.Type)
		}
		if event.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event to be delivered")
	}
}

// TestHubUnsubscribe проверяет закрытие канала после отписки.
func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	ch, unsubscribe := hub.Subscribe(userID)
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
}

// TestHubDropsWhenBufferFull проверяет, что медленный подписчик не блокирует публикацию.
func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	ch, unsubscribe := hub.Subscribe(userID)
	defer unsubscribe()

	for i := 0; i < 25; i++ {
		hub.Publish(userID, Event{Type: EventTransactionChanged})
	}

	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer, got %d of %d", len(ch), cap(ch))
	}
	if hub.Subscribers(userID) != 1 {
		t.Fatalf("expected one subscriber, got %d", hub.Subscribers(userID))
	}
}

// TestTransactionsCreatedEvent проверяет содержимое события о новых операциях.
func TestTransactionsCreatedEvent(t *testing.T) {
	userID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	event := TransactionsCreated(userID, ids, "voice")
	if event.Type != EventTransactionsCreated {
		t.Fatalf("unexpected type: %s", event.Type)
	}

	data, ok := event.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data: %T", event.Data)
	}
	if data["count"] != 2 || data["source"] != "voice" {
		t.Fatalf("unexpected data: %v", data)
	}
}

// TestNilHubPublish проверяет, что публикация в nil-хаб ничего не делает.
func TestNilHubPublish(t *testing.T) {
	var hub *Hub
	hub.Publish(uuid.New(), Event{Type: "noop"})
}
