package core

import (
	"log/slog"
	"sync"
)

// EventBus is a simple publish/subscribe bus for privacy change events.
// Subscribers that fall behind have events dropped rather than blocking
// the poll loop.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan ChangeEvent
	nextID      int
	logger      *slog.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subscribers: make(map[int]chan ChangeEvent),
		logger:      logger,
	}
}

// Publish sends an event to all subscribers
func (b *EventBus) Publish(evt ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("Event bus subscriber buffer full, dropping event",
				"subscriber_id", id,
				"device_serial", evt.Serial,
			)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
// Calling unsubscribe closes the channel.
func (b *EventBus) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan ChangeEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}
