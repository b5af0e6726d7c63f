package events

import (
	"testing"
	"time"
)

func TestBrokerDeliversToTargetUsers(t *testing.T) {
	broker := NewBroker()

	aliceCh, cancelAlice := broker.Subscribe("alice")
	defer cancelAlice()
	bobCh, cancelBob := broker.Subscribe("bob")
	defer cancelBob()

	broker.Publish(Event{Kind: KindGroup, GroupID: 1, Field: "expenses"}, "alice")

	select {
	case ev := <-aliceCh:
		if ev.Kind != KindGroup || ev.GroupID != 1 || ev.Field != "expenses" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatalf("event must be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("alice never received the event")
	}

	select {
	case ev := <-bobCh:
		t.Fatalf("bob should not receive alice's event, got %+v", ev)
	default:
	}
}

func TestBrokerCancelRemovesSubscription(t *testing.T) {
	broker := NewBroker()

	_, cancel := broker.Subscribe("alice")
	if broker.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", broker.Subscribers())
	}
	cancel()
	if broker.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d after cancel, want 0", broker.Subscribers())
	}
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	broker := NewBroker()

	ch, cancel := broker.Subscribe("alice")
	defer cancel()

	// fill the buffer and then some; Publish must never block
	for i := 0; i < 20; i++ {
		broker.Publish(Event{Kind: KindNotification}, "alice")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received == 0 || received > 8 {
				t.Fatalf("received %d events, want between 1 and 8", received)
			}
			return
		}
	}
}

func TestBrokerMultipleSubscriptionsSameUser(t *testing.T) {
	broker := NewBroker()

	first, cancelFirst := broker.Subscribe("alice")
	defer cancelFirst()
	second, cancelSecond := broker.Subscribe("alice")
	defer cancelSecond()

	broker.Publish(Event{Kind: KindGroup, GroupID: 2}, "alice")

	for _, ch := range []<-chan Event{first, second} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("every subscription of the same user must be woken")
		}
	}
}
