package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "SURVEYSYNC"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultStorageDriver = "json"
	defaultStoragePath   = "surveysync-data.json"
	defaultLogLevel      = "info"

	defaultRelayURL             = "ws://localhost:8080/ws"
	defaultReconnectBaseDelay   = 2 * time.Second
	defaultReconnectMaxAttempts = 5
)

// Storage drivers accepted by the relay.
const (
	StorageDriverJSON   = "json"
	StorageDriverSQLite = "sqlite"
)

// RelayConfig captures runtime configuration for the relay server.
type RelayConfig struct {
	HTTPAddress   string
	StorageDriver string
	StoragePath   string
	LogLevel      string
}

// ClientConfig captures runtime configuration for the watch client.
type ClientConfig struct {
	RelayURL             string
	ReconnectBaseDelay   time.Duration
	ReconnectMaxAttempts int
	LogLevel             string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("storage.driver", defaultStorageDriver)
	configViper.SetDefault("storage.path", defaultStoragePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("relay.url", defaultRelayURL)
	configViper.SetDefault("reconnect.base_delay", defaultReconnectBaseDelay)
	configViper.SetDefault("reconnect.max_attempts", defaultReconnectMaxAttempts)
}

// LoadRelay parses relay server configuration from viper.
func LoadRelay(configViper *viper.Viper) (RelayConfig, error) {
	cfg := RelayConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		StorageDriver: configViper.GetString("storage.driver"),
		StoragePath:   configViper.GetString("storage.path"),
		LogLevel:      configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return RelayConfig{}, err
	}
	return cfg, nil
}

func (c RelayConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.StorageDriver {
	case StorageDriverJSON, StorageDriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q",
			StorageDriverJSON, StorageDriverSQLite, c.StorageDriver)
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("storage.path is required")
	}
	return nil
}

// LoadClient parses watch client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		RelayURL:             configViper.GetString("relay.url"),
		ReconnectBaseDelay:   configViper.GetDuration("reconnect.base_delay"),
		ReconnectMaxAttempts: configViper.GetInt("reconnect.max_attempts"),
		LogLevel:             configViper.GetString("log.level"),
	}

	if strings.TrimSpace(cfg.RelayURL) == "" {
		return ClientConfig{}, fmt.Errorf("relay.url is required")
	}
	if cfg.ReconnectBaseDelay <= 0 {
		return ClientConfig{}, fmt.Errorf("reconnect.base_delay must be positive")
	}
	if cfg.ReconnectMaxAttempts <= 0 {
		return ClientConfig{}, fmt.Errorf("reconnect.max_attempts must be positive")
	}
	return cfg, nil
}
