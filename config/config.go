package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Default values applied by Validate when a field is unset
const (
	DefaultBaseURL         = "https://open.ys7.com/api"
	DefaultPollIntervalSec = 30
	DefaultPollConcurrency = 4
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
	Database DatabaseConfig `json:"database"`
	Ezviz    EzvizConfig    `json:"ezviz"`
	Poll     PollConfig     `json:"poll"`
	Notify   NotifyConfig   `json:"notify"`
	MQTT     MQTTConfig     `json:"mqtt"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"api_key"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// EzvizConfig contains EZVIZ open cloud API settings
type EzvizConfig struct {
	AppKey    string   `json:"app_key"`
	AppSecret string   `json:"app_secret"`
	BaseURL   string   `json:"base_url"`
	Devices   []string `json:"devices"` // serial numbers to monitor
}

// PollConfig contains status polling settings
type PollConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	Concurrency     int `json:"concurrency"`
}

// NotifyConfig contains outbound notification settings
type NotifyConfig struct {
	WebhookURL string         `json:"webhook_url"`
	Telegram   TelegramConfig `json:"telegram"`
}

// TelegramConfig contains the optional Telegram notification channel
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// MQTTConfig contains the optional MQTT entity bridge settings
type MQTTConfig struct {
	Broker      string `json:"broker"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Server.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Ezviz.AppKey == "" || c.Ezviz.AppSecret == "" {
		return fmt.Errorf("%w: EZVIZ app key and secret are required", ErrInvalidConfig)
	}

	if c.Ezviz.BaseURL == "" {
		c.Ezviz.BaseURL = DefaultBaseURL
	}

	if c.Poll.IntervalSeconds <= 0 {
		c.Poll.IntervalSeconds = DefaultPollIntervalSec
	}

	if c.Poll.Concurrency <= 0 {
		c.Poll.Concurrency = DefaultPollConcurrency
	}

	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		return fmt.Errorf("%w: telegram chat_id is required when a token is set", ErrInvalidConfig)
	}

	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ezbridge"
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:   getEnv("EZBRIDGE_HOST", "0.0.0.0"),
			Port:   getEnvInt("EZBRIDGE_PORT", 8080),
			APIKey: getEnv("EZBRIDGE_API_KEY", ""),
		},
		Log: LogConfig{
			Level:  getEnv("EZBRIDGE_LOG_LEVEL", "info"),
			Format: getEnv("EZBRIDGE_LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Path: getEnv("EZBRIDGE_DB_PATH", "./ezbridge.db"),
		},
		Ezviz: EzvizConfig{
			AppKey:    getEnv("EZBRIDGE_EZVIZ_APP_KEY", ""),
			AppSecret: getEnv("EZBRIDGE_EZVIZ_APP_SECRET", ""),
			BaseURL:   getEnv("EZBRIDGE_EZVIZ_BASE_URL", DefaultBaseURL),
			Devices:   getEnvList("EZBRIDGE_EZVIZ_DEVICES"),
		},
		Poll: PollConfig{
			IntervalSeconds: getEnvInt("EZBRIDGE_POLL_INTERVAL", DefaultPollIntervalSec),
			Concurrency:     getEnvInt("EZBRIDGE_POLL_CONCURRENCY", DefaultPollConcurrency),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("EZBRIDGE_WEBHOOK_URL", ""),
			Telegram: TelegramConfig{
				Token:  getEnv("EZBRIDGE_TELEGRAM_TOKEN", ""),
				ChatID: getEnvInt64("EZBRIDGE_TELEGRAM_CHAT_ID", 0),
			},
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("EZBRIDGE_MQTT_BROKER", ""),
			Username:    getEnv("EZBRIDGE_MQTT_USERNAME", ""),
			Password:    getEnv("EZBRIDGE_MQTT_PASSWORD", ""),
			TopicPrefix: getEnv("EZBRIDGE_MQTT_TOPIC_PREFIX", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		var intVal int64
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
