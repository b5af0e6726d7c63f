// Package events fans group and notification changes out to long-poll
// subscribers. The broker is purely in-process; cross-process delivery goes
// through AMQP instead.
package events

import (
	"sync"
	"time"
)

// Event kinds delivered to sync subscribers.
const (
	KindGroup        = "group"
	KindNotification = "notification"
)

// Event tells a client what changed so it can refetch just that resource.
type Event struct {
	Kind      string    `json:"kind"`
	GroupID   int64     `json:"group_id,omitempty"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	userID string
	ch     chan Event
}

// Broker routes events to per-user subscriptions. Slow subscribers drop
// events rather than block publishers; the long-poll protocol tolerates
// missed events because clients refetch on every wake-up.
type Broker struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a user for events. The returned channel is buffered;
// cancel must be called when the poll ends.
func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	sub := &subscriber{userID: userID, ch: make(chan Event, 8)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscription of the given users.
func (b *Broker) Publish(event Event, userIDs ...string) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	targets := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		targets[id] = struct{}{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if _, ok := targets[sub.userID]; !ok {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// subscriber is not draining, drop
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
