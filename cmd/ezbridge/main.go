package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ezbridge/config"
	"ezbridge/internal/api"
	"ezbridge/internal/bridge"
	"ezbridge/internal/core"
	"ezbridge/internal/ezviz"
	"ezbridge/internal/logging"
	"ezbridge/internal/notify"
	"ezbridge/internal/poller"
	"ezbridge/internal/storage"
	"ezbridge/internal/storage/sqlite"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error

	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}

	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Log.Format,
		Level:  logging.ParseLevel(cfg.Log.Level),
	})

	// Initialize database
	logger.Info("Initializing SQLite database", "path", cfg.Database.Path)
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize vendor client with persisted token cache
	client := ezviz.NewClient(ezviz.Config{
		AppKey:    cfg.Ezviz.AppKey,
		AppSecret: cfg.Ezviz.AppSecret,
		BaseURL:   cfg.Ezviz.BaseURL,
	}, db, logger)

	// Verify credentials before starting any background work
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, err = client.AccessToken(startupCtx)
	startupCancel()
	if err != nil {
		return fmt.Errorf("failed to connect to EZVIZ cloud: %w", err)
	}
	logger.Info("Connected to EZVIZ cloud")

	// Device state store and event bus
	bus := core.NewEventBus(logger)
	store := core.NewDeviceStore(bus, logger)
	commands := core.NewCommandService(client, store, logger)

	// Event history recorder
	recorder := storage.NewRecorder(bus, db, logger)
	recorder.Start()

	// Notification channels
	var notifiers []notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram notifier: %w", err)
		}
		notifiers = append(notifiers, tg)
	}
	dispatcher := notify.NewDispatcher(bus, notifiers, logger)
	dispatcher.Start()

	// MQTT entity bridge
	var publisher bridge.Publisher
	if cfg.MQTT.Broker != "" {
		publisher = bridge.NewHAPublisher(bridge.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, cfg.Ezviz.Devices, commands, client, store, bus, logger)
	} else {
		publisher = bridge.NewStubPublisher(logger)
	}
	if err := publisher.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start MQTT bridge: %w", err)
	}

	// Start poller
	poll := poller.NewPoller(
		client,
		store,
		cfg.Ezviz.Devices,
		time.Duration(cfg.Poll.IntervalSeconds)*time.Second,
		cfg.Poll.Concurrency,
		logger,
	)
	go poll.Start()

	// Initialize REST API
	router := api.NewRouter(api.RouterConfig{
		Store:    store,
		Client:   client,
		Commands: commands,
		History:  db,
		APIKey:   cfg.Server.APIKey,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown", "signal", sig.String())

		poll.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := publisher.Stop(shutdownCtx); err != nil {
			logger.Warn("MQTT bridge shutdown error", "error", err)
		}
		dispatcher.Stop()
		recorder.Stop()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}
