package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ezbridge/internal/core"
)

// Notifier delivers one privacy change notification to a channel.
// Delivery is at most once: a failed attempt is logged and dropped.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, evt core.ChangeEvent) error
}

const deliveryTimeout = 10 * time.Second

// Dispatcher subscribes to the event bus and fans change events out to
// all configured notifiers.
type Dispatcher struct {
	bus       *core.EventBus
	notifiers []Notifier
	logger    *slog.Logger

	unsub func()
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the given notifiers. An empty
// notifier list is valid; the dispatcher then simply drains the bus.
func NewDispatcher(bus *core.EventBus, notifiers []Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		bus:       bus,
		notifiers: notifiers,
		logger:    logger,
	}
}

// Start subscribes to the bus and begins delivering events
func (d *Dispatcher) Start() {
	evtCh, unsub := d.bus.Subscribe(128)
	d.unsub = unsub

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for evt := range evtCh {
			d.dispatch(evt)
		}
	}()

	d.logger.Info("Notification dispatcher started", "channels", len(d.notifiers))
}

// Stop unsubscribes from the bus and waits for in-flight deliveries
func (d *Dispatcher) Stop() {
	if d.unsub != nil {
		d.unsub()
	}
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(evt core.ChangeEvent) {
	for _, n := range d.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := n.Notify(ctx, evt); err != nil {
			// Terminal for this single notification attempt only
			d.logger.Error("Failed to deliver notification",
				"channel", n.Name(),
				"device_serial", evt.Serial,
				"error", err,
			)
		} else {
			d.logger.Info("Notification delivered",
				"channel", n.Name(),
				"device_serial", evt.Serial,
			)
		}
		cancel()
	}
}
