package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ezbridge/internal/core"
	"ezbridge/internal/ezviz"
)

// VendorClient is the slice of the EZVIZ API the poller needs
type VendorClient interface {
	ListDevices(ctx context.Context) ([]ezviz.DeviceInfo, error)
	PrivacyStatus(ctx context.Context, serial string) (core.PrivacyState, error)
}

// Poller periodically reconciles the device store against the vendor
// cloud. One recurring task per bridge instance; per-device fetches
// within a cycle run concurrently up to a small bound.
type Poller struct {
	client      VendorClient
	store       *core.DeviceStore
	serials     []string
	interval    time.Duration
	concurrency int
	stopChan    chan struct{}
	logger      *slog.Logger
}

// NewPoller creates a new poller for the configured device serials
func NewPoller(client VendorClient, store *core.DeviceStore, serials []string, interval time.Duration, concurrency int, logger *slog.Logger) *Poller {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:      client,
		store:       store,
		serials:     serials,
		interval:    interval,
		concurrency: concurrency,
		stopChan:    make(chan struct{}),
		logger:      logger,
	}
}

// Start begins the polling loop. The first cycle runs immediately so
// entities have state before the first interval elapses.
func (p *Poller) Start() {
	p.logger.Info("Poller started",
		"interval", p.interval.String(),
		"devices", len(p.serials),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case <-p.stopChan:
			p.logger.Info("Poller stopped")
			return
		}
	}
}

// Stop stops the polling loop
func (p *Poller) Stop() {
	close(p.stopChan)
}

// tick performs one poll cycle. Errors are logged with device context
// and never abort the remaining devices or the loop.
func (p *Poller) tick() {
	ctx := context.Background()
	start := time.Now()

	if len(p.serials) == 0 {
		p.logger.Debug("No devices configured, skipping poll cycle")
		return
	}

	directory, err := p.client.ListDevices(ctx)
	if err != nil {
		// Last known entity state stays untouched, retry next cycle
		p.logger.Error("Failed to fetch device directory", "error", err)
		return
	}

	bySerial := make(map[string]ezviz.DeviceInfo, len(directory))
	for _, info := range directory {
		bySerial[info.Serial] = info
	}

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, p.concurrency)
		mu      sync.Mutex
		changes int
	)

	for _, serial := range p.serials {
		info, known := bySerial[serial]
		if known {
			p.store.Upsert(info.Serial, info.Name, info.Online())
		}

		if known && !info.Online() {
			// Offline devices are skipped for status polling but their
			// entity is marked unavailable
			p.store.MarkOffline(serial)
			p.logger.Debug("Device offline, skipping status poll", "device_serial", serial)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(serial string) {
			defer wg.Done()
			defer func() { <-sem }()

			if p.pollDevice(ctx, serial) {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}(serial)
	}

	wg.Wait()

	p.logger.Debug("Poll cycle completed",
		"devices", len(p.serials),
		"status_changes", changes,
		"elapsed", time.Since(start).String(),
	)
}

// pollDevice fetches one device's shutter status and reconciles the
// store. Returns true when a state change was recorded.
func (p *Poller) pollDevice(ctx context.Context, serial string) bool {
	state, err := p.client.PrivacyStatus(ctx, serial)
	if err != nil {
		// Keep the previous value, flag it stale for this device only
		p.store.MarkStale(serial)
		p.logger.Error("Failed to fetch privacy status",
			"device_serial", serial,
			"error", err,
		)
		return false
	}

	return p.store.SetPrivacy(serial, state)
}
