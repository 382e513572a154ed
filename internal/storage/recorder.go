package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ezbridge/internal/core"
)

// EventLog is the slice of the storage layer the recorder writes to
type EventLog interface {
	AppendEvent(ctx context.Context, evt core.ChangeEvent) error
}

// Recorder subscribes to the event bus and appends every privacy change
// to the history log. A write failure loses that one history row only.
type Recorder struct {
	bus    *core.EventBus
	log    EventLog
	logger *slog.Logger

	unsub func()
	wg    sync.WaitGroup
}

// NewRecorder creates a new event history recorder
func NewRecorder(bus *core.EventBus, log EventLog, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		bus:    bus,
		log:    log,
		logger: logger,
	}
}

// Start subscribes to the bus and begins recording
func (r *Recorder) Start() {
	evtCh, unsub := r.bus.Subscribe(128)
	r.unsub = unsub

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for evt := range evtCh {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.log.AppendEvent(ctx, evt); err != nil {
				r.logger.Error("Failed to record privacy event",
					"device_serial", evt.Serial,
					"error", err,
				)
			}
			cancel()
		}
	}()
}

// Stop unsubscribes and waits for pending writes
func (r *Recorder) Stop() {
	if r.unsub != nil {
		r.unsub()
	}
	r.wg.Wait()
}
