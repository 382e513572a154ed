// Package bridge publishes camera entities to the host automation
// framework over MQTT. It announces Home Assistant auto-discovery
// configs for each configured camera (privacy switch, privacy status
// sensor, snapshot camera), forwards state changes from the event bus,
// and relays privacy commands back to the command service.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"ezbridge/internal/core"
)

// Publisher sends entity state to the host framework.
type Publisher interface {
	// Start connects and begins publishing events from the event bus.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	logger *slog.Logger
}

// NewStubPublisher creates a no-op publisher
func NewStubPublisher(logger *slog.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// Start is a no-op
func (s *StubPublisher) Start(_ context.Context) error {
	s.logger.Info("MQTT entity bridge disabled (stub)")
	return nil
}

// Stop is a no-op
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

var _ Publisher = (*StubPublisher)(nil)

// Config holds MQTT bridge configuration
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// CommandHandler relays imperative privacy requests without importing
// the command service directly
type CommandHandler interface {
	SetPrivacyMode(ctx context.Context, serial, mode string) error
}

// SnapshotFetcher fetches a fresh snapshot image for the camera entity
type SnapshotFetcher interface {
	Capture(ctx context.Context, serial string) ([]byte, string, error)
}

const commandTimeout = 10 * time.Second

var _ Publisher = (*HAPublisher)(nil)

// HAPublisher is the full Home Assistant MQTT implementation
type HAPublisher struct {
	cfg      Config
	serials  []string
	commands CommandHandler
	snaps    SnapshotFetcher
	store    *core.DeviceStore
	bus      *core.EventBus
	logger   *slog.Logger

	client pahomqtt.Client

	unsub func()
	wg    sync.WaitGroup
}

// NewHAPublisher creates a new Home Assistant MQTT publisher for the
// configured device serials
func NewHAPublisher(cfg Config, serials []string, commands CommandHandler, snaps SnapshotFetcher, store *core.DeviceStore, bus *core.EventBus, logger *slog.Logger) *HAPublisher {
	return &HAPublisher{
		cfg:      cfg,
		serials:  serials,
		commands: commands,
		snaps:    snaps,
		store:    store,
		bus:      bus,
		logger:   logger,
	}
}

// Start connects to the MQTT broker, publishes discovery configs and
// initial state, subscribes to command topics, and starts forwarding
// bus events.
func (p *HAPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID("ezbridge").
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.logger.Info("MQTT connected, publishing discovery and state")
			p.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.logger.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.store.OnAvailabilityChange(p.publishAvailability)

	p.logger.Info("MQTT entity bridge started", "broker", p.cfg.Broker)
	return nil
}

// Stop gracefully disconnects from the broker and stops the event loop
func (p *HAPublisher) Stop(_ context.Context) error {
	p.logger.Info("MQTT entity bridge stopping")

	if p.unsub != nil {
		p.unsub()
	}
	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.logger.Info("MQTT entity bridge stopped")
	return nil
}

func (p *HAPublisher) eventLoop(evtCh <-chan core.ChangeEvent) {
	defer p.wg.Done()
	for evt := range evtCh {
		p.publishPrivacyState(evt.Serial, evt.NewState)
	}
}

// onConnect runs on every (re)connect
func (p *HAPublisher) onConnect() {
	p.publish(p.topic("status"), "online", true)
	p.publishDiscovery()
	p.subscribeCommands()

	// HA birth topic triggers re-discovery after a HA restart
	p.client.Subscribe("homeassistant/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if string(msg.Payload()) == "online" {
			p.logger.Info("Home Assistant came online, re-publishing discovery")
			p.publishDiscovery()
			p.publishFullState()
		}
	})

	p.publishFullState()
}

// deviceInfo returns the shared HA device block for one camera
func (p *HAPublisher) deviceInfo(serial, name string) map[string]interface{} {
	return map[string]interface{}{
		"identifiers":  []string{serial},
		"name":         name,
		"manufacturer": "EZVIZ",
	}
}

// discoveryTopic builds the HA auto-discovery topic
func discoveryTopic(component, serial, objectID string) string {
	return fmt.Sprintf("homeassistant/%s/%s_%s/config", component, serial, objectID)
}

func (p *HAPublisher) publishDiscovery() {
	for _, serial := range p.serials {
		name := serial
		if dev, err := p.store.Get(serial); err == nil && dev.Name != "" {
			name = dev.Name
		}
		dev := p.deviceInfo(serial, name)

		// Entities go unavailable when either the bridge itself or the
		// individual camera drops
		avail := []map[string]interface{}{
			{"topic": p.topic("status")},
			{"topic": p.deviceTopic(serial, "availability")},
		}

		p.publishDiscoveryConfig("switch", serial, "privacy", map[string]interface{}{
			"name":              fmt.Sprintf("%s Privacy Mode", name),
			"unique_id":         fmt.Sprintf("%s_privacy", serial),
			"state_topic":       p.deviceTopic(serial, "privacy/state"),
			"command_topic":     p.deviceTopic(serial, "privacy/set"),
			"payload_on":        "on",
			"payload_off":       "off",
			"device":            dev,
			"availability":      avail,
			"availability_mode": "all",
		})

		p.publishDiscoveryConfig("binary_sensor", serial, "privacy_status", map[string]interface{}{
			"name":              fmt.Sprintf("%s Privacy Status", name),
			"unique_id":         fmt.Sprintf("%s_privacy_status", serial),
			"state_topic":       p.deviceTopic(serial, "privacy/state"),
			"payload_on":        "on",
			"payload_off":       "off",
			"device":            dev,
			"availability":      avail,
			"availability_mode": "all",
		})

		p.publishDiscoveryConfig("camera", serial, "snapshot", map[string]interface{}{
			"name":              fmt.Sprintf("%s Snapshot", name),
			"unique_id":         fmt.Sprintf("%s_snapshot", serial),
			"topic":             p.deviceTopic(serial, "camera"),
			"device":            dev,
			"availability":      avail,
			"availability_mode": "all",
		})
	}
}

func (p *HAPublisher) publishDiscoveryConfig(component, serial, objectID string, payload map[string]interface{}) {
	topic := discoveryTopic(component, serial, objectID)
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal discovery config",
			"component", component,
			"device_serial", serial,
			"error", err,
		)
		return
	}
	p.publish(topic, string(data), true)
}

func (p *HAPublisher) subscribeCommands() {
	for _, serial := range p.serials {
		serial := serial

		token := p.client.Subscribe(p.deviceTopic(serial, "privacy/set"), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			p.handlePrivacyCmd(serial, msg)
		})
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Error("Failed to subscribe to command topic", "device_serial", serial, "error", err)
		}

		token = p.client.Subscribe(p.deviceTopic(serial, "camera/refresh"), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			p.handleSnapshotCmd(serial)
		})
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Error("Failed to subscribe to snapshot topic", "device_serial", serial, "error", err)
		}
	}
}

func (p *HAPublisher) handlePrivacyCmd(serial string, msg pahomqtt.Message) {
	mode := strings.ToLower(strings.TrimSpace(string(msg.Payload())))
	p.logger.Info("MQTT command: set privacy", "device_serial", serial, "privacy_mode", mode)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := p.commands.SetPrivacyMode(ctx, serial, mode); err != nil {
		p.logger.Error("Failed to set privacy mode", "device_serial", serial, "error", err)
	}
}

func (p *HAPublisher) handleSnapshotCmd(serial string) {
	p.logger.Info("MQTT command: refresh snapshot", "device_serial", serial)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	img, _, err := p.snaps.Capture(ctx, serial)
	if err != nil {
		p.logger.Error("Failed to capture snapshot", "device_serial", serial, "error", err)
		return
	}
	p.client.Publish(p.deviceTopic(serial, "camera"), 0, false, img)
}

func (p *HAPublisher) publishFullState() {
	for _, dev := range p.store.List() {
		p.publishAvailability(dev.Serial, dev.Available())
		if dev.Privacy != "" {
			p.publishPrivacyState(dev.Serial, dev.Privacy)
		}
	}
}

// publishAvailability updates the per-device availability topic.
// Offline and stale cameras show as unavailable in HA while their last
// retained privacy state is kept.
func (p *HAPublisher) publishAvailability(serial string, available bool) {
	payload := "offline"
	if available {
		payload = "online"
	}
	p.publish(p.deviceTopic(serial, "availability"), payload, true)
}

func (p *HAPublisher) publishPrivacyState(serial string, state core.PrivacyState) {
	p.publish(p.deviceTopic(serial, "privacy/state"), string(state), true)
}

func (p *HAPublisher) publish(topic, payload string, retained bool) {
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.logger.Error("Failed to publish", "topic", topic, "error", err)
	}
}

func (p *HAPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s", p.cfg.TopicPrefix, suffix)
}

func (p *HAPublisher) deviceTopic(serial, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, serial, suffix)
}
