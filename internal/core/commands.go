package core

import (
	"context"
	"fmt"
	"log/slog"
)

// PrivacySetter is the vendor call needed by the command service
type PrivacySetter interface {
	SetPrivacy(ctx context.Context, serial string, enable bool) error
}

// CommandService handles imperative privacy mode requests from the REST
// API and the MQTT command topics.
type CommandService struct {
	client PrivacySetter
	store  *DeviceStore
	logger *slog.Logger
}

// NewCommandService creates a new command service
func NewCommandService(client PrivacySetter, store *DeviceStore, logger *slog.Logger) *CommandService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandService{
		client: client,
		store:  store,
		logger: logger,
	}
}

// SetPrivacyMode validates the requested mode, forwards it to the vendor
// and optimistically updates the cached state on success so entities
// reflect the command without waiting for the next poll cycle. The next
// poll result stays authoritative and overwrites silently on conflict.
// On vendor rejection the cached state is left unchanged.
func (c *CommandService) SetPrivacyMode(ctx context.Context, serial, mode string) error {
	state, err := ParsePrivacyState(mode)
	if err != nil {
		return err
	}

	if serial == "" {
		return fmt.Errorf("%w: device serial is required", ErrInvalidPrivacyMode)
	}

	if err := c.client.SetPrivacy(ctx, serial, state.Enabled()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCommandFailed, serial, err)
	}

	c.logger.Info("Privacy mode set",
		"device_serial", serial,
		"privacy_mode", state,
	)

	c.store.SetPrivacy(serial, state)
	return nil
}
