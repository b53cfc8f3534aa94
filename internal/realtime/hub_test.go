package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/internal/ledger"
	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
)

func event(restaurantID uuid.UUID, amount int64) ledger.Event {
	return ledger.Event{
		Kind: ledger.EventTransactionCreated,
		Entry: models.Transaction{
			ID:           uuid.New(),
			RestaurantID: restaurantID,
			Amount:       amount,
		},
	}
}

func TestPublishReachesAllScopeSubscribers(t *testing.T) {
	hub := NewHub(0)
	restaurantID := uuid.New()

	first := hub.Subscribe(restaurantID)
	second := hub.Subscribe(restaurantID)
	defer hub.Unsubscribe(restaurantID, first)
	defer hub.Unsubscribe(restaurantID, second)

	hub.Publish(restaurantID, event(restaurantID, 10))

	for _, sub := range []*Subscriber{first, second} {
		select {
		case got := <-sub.Events():
			if got.Entry.Amount != 10 {
				t.Fatalf("amount = %d, want 10", got.Entry.Amount)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestPublishIsScopedPerRestaurant(t *testing.T) {
	hub := NewHub(0)
	mine := uuid.New()
	theirs := uuid.New()

	sub := hub.Subscribe(mine)
	defer hub.Unsubscribe(mine, sub)

	hub.Publish(theirs, event(theirs, 25))

	select {
	case got := <-sub.Events():
		t.Fatalf("received event for another restaurant: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithNoSubscribersDropsEvent(t *testing.T) {
	hub := NewHub(0)
	// Must not panic or block.
	hub.Publish(uuid.New(), event(uuid.New(), 5))
}

func TestSlowSubscriberLosesEventsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(2)
	restaurantID := uuid.New()

	sub := hub.Subscribe(restaurantID)
	defer hub.Unsubscribe(restaurantID, sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(restaurantID, event(restaurantID, int64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
		default:
			if received != 2 {
				t.Fatalf("buffered %d events, want exactly the buffer size (2)", received)
			}
			return
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(0)
	restaurantID := uuid.New()

	sub := hub.Subscribe(restaurantID)
	hub.Unsubscribe(restaurantID, sub)

	if _, open := <-sub.Events(); open {
		t.Fatal("channel still open after Unsubscribe")
	}
	if count := hub.SubscriberCount(restaurantID); count != 0 {
		t.Fatalf("subscriber count = %d after Unsubscribe, want 0", count)
	}

	// Double unsubscribe must be a no-op.
	hub.Unsubscribe(restaurantID, sub)

	// Publishing after unsubscribe must not panic on the closed channel.
	hub.Publish(restaurantID, event(restaurantID, 1))
}
