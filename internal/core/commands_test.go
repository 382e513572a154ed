package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPrivacySetter records calls and returns a configurable error
type mockPrivacySetter struct {
	calls  int
	serial string
	enable bool
	err    error
}

func (m *mockPrivacySetter) SetPrivacy(_ context.Context, serial string, enable bool) error {
	m.calls++
	m.serial = serial
	m.enable = enable
	return m.err
}

func TestCommandService_SetPrivacyMode(t *testing.T) {
	client := &mockPrivacySetter{}
	store := NewDeviceStore(NewEventBus(nil), nil)
	svc := NewCommandService(client, store, nil)

	err := svc.SetPrivacyMode(context.Background(), "C0123456", "on")
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "C0123456", client.serial)
	assert.True(t, client.enable)

	// Optimistic update: the cached state reflects the command
	dev, err := store.Get("C0123456")
	require.NoError(t, err)
	assert.Equal(t, PrivacyOn, dev.Privacy)
}

func TestCommandService_InvalidModeFailsBeforeNetwork(t *testing.T) {
	client := &mockPrivacySetter{}
	store := NewDeviceStore(NewEventBus(nil), nil)
	svc := NewCommandService(client, store, nil)

	err := svc.SetPrivacyMode(context.Background(), "C0123456", "enabled")
	assert.ErrorIs(t, err, ErrInvalidPrivacyMode)
	assert.Zero(t, client.calls)
}

func TestCommandService_EmptySerial(t *testing.T) {
	client := &mockPrivacySetter{}
	svc := NewCommandService(client, NewDeviceStore(NewEventBus(nil), nil), nil)

	err := svc.SetPrivacyMode(context.Background(), "", "off")
	assert.Error(t, err)
	assert.Zero(t, client.calls)
}

func TestCommandService_VendorRejection(t *testing.T) {
	client := &mockPrivacySetter{err: errors.New("device busy")}
	store := NewDeviceStore(NewEventBus(nil), nil)
	svc := NewCommandService(client, store, nil)

	// Seed a known state
	store.SetPrivacy("C0123456", PrivacyOff)

	err := svc.SetPrivacyMode(context.Background(), "C0123456", "on")
	assert.ErrorIs(t, err, ErrCommandFailed)

	// Cached state stays unchanged on failure
	dev, getErr := store.Get("C0123456")
	require.NoError(t, getErr)
	assert.Equal(t, PrivacyOff, dev.Privacy)
}

func TestCommandService_OptimisticUpdateEmitsEvent(t *testing.T) {
	client := &mockPrivacySetter{}
	bus := NewEventBus(nil)
	store := NewDeviceStore(bus, nil)
	svc := NewCommandService(client, store, nil)

	store.SetPrivacy("C0123456", PrivacyOff)

	ch, unsub := bus.Subscribe(4)
	defer unsub()

	err := svc.SetPrivacyMode(context.Background(), "C0123456", "on")
	require.NoError(t, err)

	events := collectEvents(ch)
	require.Len(t, events, 1)
	assert.Equal(t, PrivacyOff, events[0].OldState)
	assert.Equal(t, PrivacyOn, events[0].NewState)
}
