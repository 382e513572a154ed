package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ezbridge/internal/core"

	"github.com/stretchr/testify/assert"
)

// recordingNotifier captures delivered events
type recordingNotifier struct {
	mu     sync.Mutex
	name   string
	events []core.ChangeEvent
	err    error
}

func (r *recordingNotifier) Name() string {
	return r.name
}

func (r *recordingNotifier) Notify(_ context.Context, evt core.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestDispatcher_FanOut(t *testing.T) {
	bus := core.NewEventBus(nil)
	first := &recordingNotifier{name: "first"}
	second := &recordingNotifier{name: "second"}

	d := NewDispatcher(bus, []Notifier{first, second}, nil)
	d.Start()

	bus.Publish(testEvent())

	assert.Eventually(t, func() bool {
		return first.count() == 1 && second.count() == 1
	}, time.Second, 10*time.Millisecond)

	d.Stop()
}

func TestDispatcher_FailureDoesNotBlockOthers(t *testing.T) {
	bus := core.NewEventBus(nil)
	failing := &recordingNotifier{name: "failing", err: errors.New("unreachable")}
	working := &recordingNotifier{name: "working"}

	d := NewDispatcher(bus, []Notifier{failing, working}, nil)
	d.Start()

	bus.Publish(testEvent())
	bus.Publish(testEvent())

	// Delivery is at most once: the failing channel gets no retry and
	// the working channel still receives every event
	assert.Eventually(t, func() bool {
		return working.count() == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, failing.count())

	d.Stop()
}

func TestDispatcher_StopDrains(t *testing.T) {
	bus := core.NewEventBus(nil)
	d := NewDispatcher(bus, nil, nil)
	d.Start()
	d.Stop()

	// Publishing after stop must not panic
	bus.Publish(testEvent())
}
