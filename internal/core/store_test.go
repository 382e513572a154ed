package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(ch <-chan ChangeEvent) []ChangeEvent {
	var events []ChangeEvent
	for {
		select {
		case evt := <-ch:
			events = append(events, evt)
		default:
			return events
		}
	}
}

func TestDeviceStore_FirstObservationNoEvent(t *testing.T) {
	bus := NewEventBus(nil)
	store := NewDeviceStore(bus, nil)

	ch, unsub := bus.Subscribe(16)
	defer unsub()

	changed := store.SetPrivacy("C0123456", PrivacyOff)
	assert.False(t, changed)
	assert.Empty(t, collectEvents(ch))

	dev, err := store.Get("C0123456")
	require.NoError(t, err)
	assert.Equal(t, PrivacyOff, dev.Privacy)
}

func TestDeviceStore_SetPrivacyDiffSemantics(t *testing.T) {
	bus := NewEventBus(nil)
	store := NewDeviceStore(bus, nil)

	ch, unsub := bus.Subscribe(16)
	defer unsub()

	// Observed sequence off, off, on, on, off yields exactly two events
	sequence := []PrivacyState{PrivacyOff, PrivacyOff, PrivacyOn, PrivacyOn, PrivacyOff}
	var changes int
	for _, state := range sequence {
		if store.SetPrivacy("C0123456", state) {
			changes++
		}
	}
	assert.Equal(t, 2, changes)

	events := collectEvents(ch)
	require.Len(t, events, 2)

	assert.Equal(t, PrivacyOff, events[0].OldState)
	assert.Equal(t, PrivacyOn, events[0].NewState)
	assert.Equal(t, PrivacyOn, events[1].OldState)
	assert.Equal(t, PrivacyOff, events[1].NewState)

	for _, evt := range events {
		assert.NotEmpty(t, evt.ID)
		assert.Equal(t, "C0123456", evt.Serial)
		assert.False(t, evt.Timestamp.IsZero())
	}
}

func TestDeviceStore_EventCarriesDirectoryName(t *testing.T) {
	bus := NewEventBus(nil)
	store := NewDeviceStore(bus, nil)

	ch, unsub := bus.Subscribe(16)
	defer unsub()

	store.Upsert("C0123456", "Living Room", true)
	store.SetPrivacy("C0123456", PrivacyOff)
	store.SetPrivacy("C0123456", PrivacyOn)

	events := collectEvents(ch)
	require.Len(t, events, 1)
	assert.Equal(t, "Living Room", events[0].Name)
}

func TestDeviceStore_UpsertPreservesPrivacy(t *testing.T) {
	store := NewDeviceStore(NewEventBus(nil), nil)

	store.SetPrivacy("C0123456", PrivacyOn)
	store.Upsert("C0123456", "Front Door", true)

	dev, err := store.Get("C0123456")
	require.NoError(t, err)
	assert.Equal(t, "Front Door", dev.Name)
	assert.Equal(t, PrivacyOn, dev.Privacy)
}

func TestDeviceStore_MarkStale(t *testing.T) {
	store := NewDeviceStore(NewEventBus(nil), nil)

	store.SetPrivacy("C0123456", PrivacyOn)
	store.MarkStale("C0123456")

	dev, err := store.Get("C0123456")
	require.NoError(t, err)
	assert.True(t, dev.Stale)
	// Last known value is retained
	assert.Equal(t, PrivacyOn, dev.Privacy)

	// A successful observation clears the flag
	store.SetPrivacy("C0123456", PrivacyOn)
	dev, err = store.Get("C0123456")
	require.NoError(t, err)
	assert.False(t, dev.Stale)
}

func TestDeviceStore_MarkOffline(t *testing.T) {
	store := NewDeviceStore(NewEventBus(nil), nil)

	store.Upsert("C0123456", "Garage", true)
	store.SetPrivacy("C0123456", PrivacyOff)
	store.MarkOffline("C0123456")

	dev, err := store.Get("C0123456")
	require.NoError(t, err)
	assert.False(t, dev.Online)
	assert.Equal(t, PrivacyOff, dev.Privacy)
}

func TestDeviceStore_GetNotFound(t *testing.T) {
	store := NewDeviceStore(NewEventBus(nil), nil)

	_, err := store.Get("unknown")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestDeviceStore_List(t *testing.T) {
	store := NewDeviceStore(NewEventBus(nil), nil)

	assert.Empty(t, store.List())

	store.Upsert("C0123456", "Living Room", true)
	store.Upsert("C0654321", "Garage", false)

	devices := store.List()
	assert.Len(t, devices, 2)
}

type availRecorder struct {
	serials []string
	states  []bool
}

func (a *availRecorder) record(serial string, available bool) {
	a.serials = append(a.serials, serial)
	a.states = append(a.states, available)
}

func TestDeviceStore_AvailabilityTransitions(t *testing.T) {
	store := NewDeviceStore(NewEventBus(nil), nil)

	rec := &availRecorder{}
	store.OnAvailabilityChange(rec.record)

	// First sighting seeds the initial value
	store.Upsert("C0123456", "Living Room", true)
	require.Equal(t, []bool{true}, rec.states)

	// Unchanged availability stays silent
	store.Upsert("C0123456", "Living Room", true)
	store.SetPrivacy("C0123456", PrivacyOff)
	require.Equal(t, []bool{true}, rec.states)

	// Going offline flips it once
	store.MarkOffline("C0123456")
	store.MarkOffline("C0123456")
	require.Equal(t, []bool{true, false}, rec.states)

	// Directory reports it back online
	store.Upsert("C0123456", "Living Room", true)
	require.Equal(t, []bool{true, false, true}, rec.states)

	// A failed status fetch makes it unavailable too
	store.MarkStale("C0123456")
	require.Equal(t, []bool{true, false, true, false}, rec.states)

	// The next successful observation recovers it
	store.SetPrivacy("C0123456", PrivacyOff)
	require.Equal(t, []bool{true, false, true, false, true}, rec.states)

	assert.Equal(t, "C0123456", rec.serials[0])
}

func TestDeviceStore_AvailabilitySeededBySetPrivacy(t *testing.T) {
	store := NewDeviceStore(NewEventBus(nil), nil)

	rec := &availRecorder{}
	store.OnAvailabilityChange(rec.record)

	// A device first seen through a status observation counts as
	// available immediately
	store.SetPrivacy("C0123456", PrivacyOn)
	require.Equal(t, []bool{true}, rec.states)
}

func TestDeviceStore_AvailableFlag(t *testing.T) {
	assert.True(t, Device{Online: true}.Available())
	assert.False(t, Device{Online: false}.Available())
	assert.False(t, Device{Online: true, Stale: true}.Available())
}

func TestEventBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus(nil)

	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(ChangeEvent{ID: "evt_1"})
	bus.Publish(ChangeEvent{ID: "evt_2"}) // dropped, buffer full

	events := collectEvents(ch)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_1", events[0].ID)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(nil)

	ch, unsub := bus.Subscribe(4)
	unsub()

	// Channel is closed after unsubscribe
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected closed channel")
	}

	// Publishing after unsubscribe must not panic
	bus.Publish(ChangeEvent{ID: "evt_3"})
}
