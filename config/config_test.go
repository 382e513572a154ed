package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				Server: ServerConfig{
					Host:   "0.0.0.0",
					Port:   8080,
					APIKey: "test-key",
				},
				Database: DatabaseConfig{
					Path: "/path/to/db",
				},
				Ezviz: EzvizConfig{
					AppKey:    "app-key",
					AppSecret: "app-secret",
				},
			},
			wantErr: false,
		},
		{
			name: "invalid port - zero",
			config: Config{
				Server:   ServerConfig{Port: 0, APIKey: "test-key"},
				Database: DatabaseConfig{Path: "/path/to/db"},
				Ezviz:    EzvizConfig{AppKey: "app-key", AppSecret: "app-secret"},
			},
			wantErr: true,
		},
		{
			name: "invalid port - too large",
			config: Config{
				Server:   ServerConfig{Port: 70000, APIKey: "test-key"},
				Database: DatabaseConfig{Path: "/path/to/db"},
				Ezviz:    EzvizConfig{AppKey: "app-key", AppSecret: "app-secret"},
			},
			wantErr: true,
		},
		{
			name: "missing API key",
			config: Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Path: "/path/to/db"},
				Ezviz:    EzvizConfig{AppKey: "app-key", AppSecret: "app-secret"},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			config: Config{
				Server: ServerConfig{Port: 8080, APIKey: "test-key"},
				Ezviz:  EzvizConfig{AppKey: "app-key", AppSecret: "app-secret"},
			},
			wantErr: true,
		},
		{
			name: "missing EZVIZ credentials",
			config: Config{
				Server:   ServerConfig{Port: 8080, APIKey: "test-key"},
				Database: DatabaseConfig{Path: "/path/to/db"},
			},
			wantErr: true,
		},
		{
			name: "telegram token without chat id",
			config: Config{
				Server:   ServerConfig{Port: 8080, APIKey: "test-key"},
				Database: DatabaseConfig{Path: "/path/to/db"},
				Ezviz:    EzvizConfig{AppKey: "app-key", AppSecret: "app-secret"},
				Notify: NotifyConfig{
					Telegram: TelegramConfig{Token: "bot-token"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	config := Config{
		Server:   ServerConfig{Port: 8080, APIKey: "test-key"},
		Database: DatabaseConfig{Path: "/path/to/db"},
		Ezviz:    EzvizConfig{AppKey: "app-key", AppSecret: "app-secret"},
		MQTT:     MQTTConfig{Broker: "tcp://localhost:1883"},
	}

	err := config.Validate()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, config.Ezviz.BaseURL)
	assert.Equal(t, DefaultPollIntervalSec, config.Poll.IntervalSeconds)
	assert.Equal(t, DefaultPollConcurrency, config.Poll.Concurrency)
	assert.Equal(t, "ezbridge", config.MQTT.TopicPrefix)
}

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	validConfig := `{
		"server": {
			"host": "0.0.0.0",
			"port": 8080,
			"api_key": "test-key"
		},
		"database": {
			"path": "/path/to/db"
		},
		"ezviz": {
			"app_key": "app-key",
			"app_secret": "app-secret",
			"devices": ["C0123456", "C0654321"]
		},
		"poll": {
			"interval_seconds": 15
		},
		"notify": {
			"webhook_url": "https://example.com/webhook"
		}
	}`

	err := os.WriteFile(configPath, []byte(validConfig), 0644)
	require.NoError(t, err)

	// Test loading valid config
	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "test-key", config.Server.APIKey)
	assert.Equal(t, "/path/to/db", config.Database.Path)
	assert.Equal(t, "app-key", config.Ezviz.AppKey)
	assert.Equal(t, []string{"C0123456", "C0654321"}, config.Ezviz.Devices)
	assert.Equal(t, 15, config.Poll.IntervalSeconds)
	assert.Equal(t, "https://example.com/webhook", config.Notify.WebhookURL)

	// Test loading non-existent file
	_, err = Load("/nonexistent/config.json")
	assert.ErrorIs(t, err, ErrConfigFileNotFound)

	// Test loading invalid JSON
	invalidPath := filepath.Join(tmpDir, "invalid.json")
	err = os.WriteFile(invalidPath, []byte("invalid json"), 0644)
	require.NoError(t, err)

	_, err = Load(invalidPath)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	// Set environment variables
	os.Setenv("EZBRIDGE_HOST", "127.0.0.1")
	os.Setenv("EZBRIDGE_PORT", "9090")
	os.Setenv("EZBRIDGE_API_KEY", "env-api-key")
	os.Setenv("EZBRIDGE_DB_PATH", "/custom/db/path")
	os.Setenv("EZBRIDGE_EZVIZ_APP_KEY", "env-app-key")
	os.Setenv("EZBRIDGE_EZVIZ_APP_SECRET", "env-app-secret")
	os.Setenv("EZBRIDGE_EZVIZ_DEVICES", "C0123456, C0654321")
	os.Setenv("EZBRIDGE_TELEGRAM_TOKEN", "env-bot-token")
	os.Setenv("EZBRIDGE_TELEGRAM_CHAT_ID", "-1001234567")

	defer func() {
		os.Unsetenv("EZBRIDGE_HOST")
		os.Unsetenv("EZBRIDGE_PORT")
		os.Unsetenv("EZBRIDGE_API_KEY")
		os.Unsetenv("EZBRIDGE_DB_PATH")
		os.Unsetenv("EZBRIDGE_EZVIZ_APP_KEY")
		os.Unsetenv("EZBRIDGE_EZVIZ_APP_SECRET")
		os.Unsetenv("EZBRIDGE_EZVIZ_DEVICES")
		os.Unsetenv("EZBRIDGE_TELEGRAM_TOKEN")
		os.Unsetenv("EZBRIDGE_TELEGRAM_CHAT_ID")
	}()

	config, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "env-api-key", config.Server.APIKey)
	assert.Equal(t, "/custom/db/path", config.Database.Path)
	assert.Equal(t, "env-app-key", config.Ezviz.AppKey)
	assert.Equal(t, []string{"C0123456", "C0654321"}, config.Ezviz.Devices)
	assert.Equal(t, "env-bot-token", config.Notify.Telegram.Token)
	assert.Equal(t, int64(-1001234567), config.Notify.Telegram.ChatID)
	assert.Equal(t, DefaultBaseURL, config.Ezviz.BaseURL)
}
