package core

import (
	"log/slog"
	"sync"
	"time"

	"ezbridge/internal/idgen"
)

// DeviceStore holds the last known state of every monitored camera.
// All updates are atomic per device. SetPrivacy is the single diff point:
// every observed or commanded state passes through it, so a change is
// reported exactly once no matter where it was seen first.
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*Device
	bus     *EventBus
	logger  *slog.Logger

	availListeners []func(serial string, available bool)
}

// NewDeviceStore creates a store wired to the event bus
func NewDeviceStore(bus *EventBus, logger *slog.Logger) *DeviceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceStore{
		devices: make(map[string]*Device),
		bus:     bus,
		logger:  logger,
	}
}

// OnAvailabilityChange registers a callback invoked whenever a device's
// availability flips. The callback fires once when a device is first
// recorded, seeding the initial value, and runs outside the store lock.
func (s *DeviceStore) OnAvailabilityChange(fn func(serial string, available bool)) {
	s.mu.Lock()
	s.availListeners = append(s.availListeners, fn)
	s.mu.Unlock()
}

// Upsert records directory metadata for a device. Privacy state is left
// untouched; the poller and command service own that field.
func (s *DeviceStore) Upsert(serial, name string, online bool) {
	s.mu.Lock()

	dev, ok := s.devices[serial]
	if !ok {
		dev = &Device{
			Serial:    serial,
			Name:      name,
			Online:    online,
			UpdatedAt: time.Now(),
		}
		s.devices[serial] = dev
	}

	wasAvail := dev.Available()
	dev.Name = name
	dev.Online = online
	dev.UpdatedAt = time.Now()

	notify := !ok || wasAvail != dev.Available()
	avail := dev.Available()
	listeners := s.availListeners
	s.mu.Unlock()

	if notify {
		for _, fn := range listeners {
			fn(serial, avail)
		}
	}
}

// SetPrivacy records an observed or commanded privacy state. The first
// observation for a device seeds the state without emitting an event;
// an unchanged state refreshes the timestamp only; a changed state emits
// exactly one ChangeEvent on the bus.
func (s *DeviceStore) SetPrivacy(serial string, state PrivacyState) (changed bool) {
	s.mu.Lock()

	dev, ok := s.devices[serial]
	wasAvail := ok && dev.Available()
	if !ok {
		// A record created here always follows a successful vendor
		// exchange for this serial, so the device is reachable
		dev = &Device{Serial: serial, Name: serial, Online: true}
		s.devices[serial] = dev
	}

	old := dev.Privacy
	dev.Privacy = state
	dev.Stale = false
	dev.UpdatedAt = time.Now()

	changed = old != privacyUnknown && old != state
	notifyAvail := !ok || wasAvail != dev.Available()
	avail := dev.Available()
	listeners := s.availListeners

	var evt ChangeEvent
	if changed {
		evt = ChangeEvent{
			ID:        idgen.NewEvent(),
			Serial:    dev.Serial,
			Name:      dev.Name,
			OldState:  old,
			NewState:  state,
			Timestamp: dev.UpdatedAt,
		}
	}
	s.mu.Unlock()

	if notifyAvail {
		for _, fn := range listeners {
			fn(serial, avail)
		}
	}

	if changed {
		s.logger.Info("Privacy mode changed",
			"device_serial", evt.Serial,
			"device_name", evt.Name,
			"old_status", evt.OldState,
			"new_status", evt.NewState,
		)
		s.bus.Publish(evt)
	}

	return changed
}

// MarkStale flags a device whose status fetch failed this cycle.
// The previous value is retained.
func (s *DeviceStore) MarkStale(serial string) {
	s.mu.Lock()

	dev, ok := s.devices[serial]
	if !ok {
		s.mu.Unlock()
		return
	}

	wasAvail := dev.Available()
	dev.Stale = true
	listeners := s.availListeners
	s.mu.Unlock()

	if wasAvail {
		for _, fn := range listeners {
			fn(serial, false)
		}
	}
}

// MarkOffline flags a device the directory reports offline. Its entity
// is unavailable but the last known privacy state is kept.
func (s *DeviceStore) MarkOffline(serial string) {
	s.mu.Lock()

	dev, ok := s.devices[serial]
	if !ok {
		s.mu.Unlock()
		return
	}

	wasAvail := dev.Available()
	dev.Online = false
	dev.UpdatedAt = time.Now()
	listeners := s.availListeners
	s.mu.Unlock()

	if wasAvail {
		for _, fn := range listeners {
			fn(serial, false)
		}
	}
}

// Get returns a copy of one device record
func (s *DeviceStore) Get(serial string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[serial]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return *dev, nil
}

// List returns copies of all device records
func (s *DeviceStore) List() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.devices))
	for _, dev := range s.devices {
		out = append(out, *dev)
	}
	return out
}
