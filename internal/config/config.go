package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AdapterType identifies which nearby-transport backend should be used.
type AdapterType string

const (
	AdapterLAN       AdapterType = "lan"
	AdapterSimulated AdapterType = "simulated"

	DefaultChatPort      = 47331
	DefaultDiscoveryPort = 47330
	DefaultDiagAddr      = "127.0.0.1:47332"
	DefaultSettleDelayMS = 1500
	DefaultPeerExpiryS   = 300
)

// IdentityConfig describes how this device presents itself to peers.
type IdentityConfig struct {
	DisplayName string `json:"display_name"`
	DeviceType  string `json:"device_type"`
}

// NetworkConfig contains transport and relay parameters.
type NetworkConfig struct {
	Adapter       AdapterType `json:"adapter"`
	ChatPort      int         `json:"chat_port"`
	DiscoveryPort int         `json:"discovery_port"`
	SettleDelayMS int         `json:"settle_delay_ms"`
	PeerExpiryS   int         `json:"peer_expiry_s"`
}

func (n NetworkConfig) SettleDelay() time.Duration {
	return time.Duration(n.SettleDelayMS) * time.Millisecond
}

func (n NetworkConfig) PeerExpiry() time.Duration {
	return time.Duration(n.PeerExpiryS) * time.Second
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	Enabled bool                     `json:"enabled"`
	Events  NotificationEventsConfig `json:"events"`
}

// NotificationEventsConfig stores per-event notification toggles.
type NotificationEventsConfig struct {
	IncomingMessage bool `json:"incoming_message"`
	PeerJoined      bool `json:"peer_joined"`
	PeerLeft        bool `json:"peer_left"`
	SocketStatus    bool `json:"socket_status"`
}

// DiagnosticsConfig gates the local websocket event stream.
type DiagnosticsConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Identity      IdentityConfig     `json:"identity"`
	Network       NetworkConfig      `json:"network"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
	Diagnostics   DiagnosticsConfig  `json:"diagnostics"`
}

func Default() AppConfig {
	return AppConfig{
		Identity: IdentityConfig{
			DisplayName: "",
			DeviceType:  "desktop",
		},
		Network: NetworkConfig{
			Adapter:       AdapterLAN,
			ChatPort:      DefaultChatPort,
			DiscoveryPort: DefaultDiscoveryPort,
			SettleDelayMS: DefaultSettleDelayMS,
			PeerExpiryS:   DefaultPeerExpiryS,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Events: NotificationEventsConfig{
				IncomingMessage: true,
				PeerJoined:      true,
				PeerLeft:        true,
				SocketStatus:    true,
			},
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:    false,
			ListenAddr: DefaultDiagAddr,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Identity.DeviceType == "" {
		c.Identity.DeviceType = "desktop"
	}
	if c.Network.Adapter == "" {
		c.Network.Adapter = AdapterLAN
	}
	if c.Network.ChatPort <= 0 {
		c.Network.ChatPort = DefaultChatPort
	}
	if c.Network.DiscoveryPort <= 0 {
		c.Network.DiscoveryPort = DefaultDiscoveryPort
	}
	if c.Network.SettleDelayMS <= 0 {
		c.Network.SettleDelayMS = DefaultSettleDelayMS
	}
	if c.Network.PeerExpiryS <= 0 {
		c.Network.PeerExpiryS = DefaultPeerExpiryS
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Diagnostics.ListenAddr == "" {
		c.Diagnostics.ListenAddr = DefaultDiagAddr
	}
}

func (c AppConfig) Validate() error {
	switch c.Network.Adapter {
	case AdapterLAN, AdapterSimulated:
	default:
		return fmt.Errorf("unknown adapter: %s", c.Network.Adapter)
	}
	if c.Network.ChatPort <= 0 || c.Network.ChatPort > 65535 {
		return fmt.Errorf("chat port out of range: %d", c.Network.ChatPort)
	}
	if c.Network.DiscoveryPort <= 0 || c.Network.DiscoveryPort > 65535 {
		return fmt.Errorf("discovery port out of range: %d", c.Network.DiscoveryPort)
	}
	if c.Network.ChatPort == c.Network.DiscoveryPort {
		return errors.New("chat and discovery ports must differ")
	}
	if c.Network.PeerExpiryS <= 0 {
		return errors.New("peer expiry must be positive")
	}
	if c.Diagnostics.Enabled && c.Diagnostics.ListenAddr == "" {
		return errors.New("diagnostics listen address is required")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
