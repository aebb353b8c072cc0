package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blekbd/internal/ble"
)

// Config holds all application configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device" toml:"device"`
	Advertising AdvertisingConfig `yaml:"advertising" toml:"advertising"`
	Connection  ConnectionConfig  `yaml:"connection" toml:"connection"`
	Security    SecurityConfig    `yaml:"security" toml:"security"`
	Features    FeaturesConfig    `yaml:"features" toml:"features"`
	Queue       QueueConfig       `yaml:"queue" toml:"queue"`
	Store       StoreConfig       `yaml:"store" toml:"store"`
	KeySource   KeySourceConfig   `yaml:"key_source" toml:"key_source"`
	LogLevel    string            `yaml:"log_level" toml:"log_level"`
	LogFile     string            `yaml:"log_file" toml:"log_file"`
}

// Duration is a time.Duration written as a Go duration string ("30s", "15m").
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration { return Duration{d} }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DeviceConfig describes how the keyboard presents itself.
type DeviceConfig struct {
	Name             string `yaml:"name" toml:"name"`
	Appearance       uint16 `yaml:"appearance" toml:"appearance"`
	Manufacturer     string `yaml:"manufacturer" toml:"manufacturer"`
	Model            string `yaml:"model" toml:"model"`
	Serial           string `yaml:"serial" toml:"serial"`
	HardwareRevision string `yaml:"hardware_revision" toml:"hardware_revision"`
	FirmwareRevision string `yaml:"firmware_revision" toml:"firmware_revision"`
	SoftwareRevision string `yaml:"software_revision" toml:"software_revision"`
	VendorID         uint16 `yaml:"vendor_id" toml:"vendor_id"`
	ProductID        uint16 `yaml:"product_id" toml:"product_id"`
	ProductVersion   uint16 `yaml:"product_version" toml:"product_version"`
	TxPower          int8   `yaml:"tx_power" toml:"tx_power"`
	// Seed derives the local identity resolving key. Empty disables
	// resolvable private addresses.
	Seed string `yaml:"seed" toml:"seed"`
}

// AdvertisingConfig holds the two undirected advertising phases.
type AdvertisingConfig struct {
	FastMinInterval Duration `yaml:"fast_min_interval" toml:"fast_min_interval"`
	FastMaxInterval Duration `yaml:"fast_max_interval" toml:"fast_max_interval"`
	FastTimeout     Duration `yaml:"fast_timeout" toml:"fast_timeout"`
	SlowMinInterval Duration `yaml:"slow_min_interval" toml:"slow_min_interval"`
	SlowMaxInterval Duration `yaml:"slow_max_interval" toml:"slow_max_interval"`
	SlowTimeout     Duration `yaml:"slow_timeout" toml:"slow_timeout"`
}

// ParamSet is a connection parameter request.
type ParamSet struct {
	MinInterval Duration `yaml:"min_interval" toml:"min_interval"`
	MaxInterval Duration `yaml:"max_interval" toml:"max_interval"`
	Latency     uint16   `yaml:"latency" toml:"latency"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
}

// Request converts p to controller units.
func (p ParamSet) Request() ble.ParamRequest {
	return ble.ParamRequest{
		MinInterval: ble.IntervalUnits(p.MinInterval.Duration),
		MaxInterval: ble.IntervalUnits(p.MaxInterval.Duration),
		Latency:     p.Latency,
		Timeout:     ble.TimeoutUnits(p.Timeout.Duration),
	}
}

// ConnectionConfig controls the connected phase and parameter negotiation.
type ConnectionConfig struct {
	IdleTimeout Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	Preferred   ParamSet `yaml:"preferred" toml:"preferred"`
	Alternate   ParamSet `yaml:"alternate" toml:"alternate"`
	// PausePeriod is the quiet time after connecting before negotiation.
	PausePeriod   Duration `yaml:"pause_period" toml:"pause_period"`
	CentralPeriod Duration `yaml:"central_period" toml:"central_period"`
	RetryPeriod   Duration `yaml:"retry_period" toml:"retry_period"`
	MaxAttempts   int      `yaml:"max_attempts" toml:"max_attempts"`
	SelfAttempts  int      `yaml:"self_attempts" toml:"self_attempts"`
}

// SecurityConfig controls pairing and bonding.
type SecurityConfig struct {
	BondingChance  Duration `yaml:"bonding_chance" toml:"bonding_chance"`
	PairingWait    Duration `yaml:"pairing_wait" toml:"pairing_wait"`
	MaxRevokes     int      `yaml:"max_revokes" toml:"max_revokes"`
	ButtonDebounce Duration `yaml:"button_debounce" toml:"button_debounce"`
	ButtonHold     Duration `yaml:"button_hold" toml:"button_hold"`
}

// FeaturesConfig holds the optional behaviours.
type FeaturesConfig struct {
	Privacy             bool     `yaml:"privacy" toml:"privacy"`
	ProprietaryBoot     bool     `yaml:"proprietary_boot" toml:"proprietary_boot"`
	PendingReportWait   bool     `yaml:"pending_report_wait" toml:"pending_report_wait"`
	PendingReportPeriod Duration `yaml:"pending_report_period" toml:"pending_report_period"`
	RandomAddressPeriod Duration `yaml:"random_address_period" toml:"random_address_period"`
	RandomAddressRetry  Duration `yaml:"random_address_retry" toml:"random_address_retry"`
}

// QueueConfig sizes the pending report queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
}

// StoreConfig locates the persistent store image.
type StoreConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// KeySourceConfig selects where key events come from.
type KeySourceConfig struct {
	Type string `yaml:"type" toml:"type"` // "terminal" or "hook"
	// PairingKeys is the desktop chord standing in for the pairing button.
	PairingKeys []string `yaml:"pairing_keys" toml:"pairing_keys"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blekbd")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	storePath := filepath.Join(home, ".local", "share", "blekbd", "store.bin")

	return &Config{
		Device: DeviceConfig{
			Name:             "BLE Keyboard",
			Appearance:       0x03C1,
			Manufacturer:     "blekbd",
			Model:            "blekbd",
			Serial:           "0001",
			HardwareRevision: "1",
			FirmwareRevision: "1.0",
			SoftwareRevision: "1.0",
			VendorID:         0x000A,
			ProductID:        0x014C,
			ProductVersion:   0x0100,
			TxPower:          0,
		},
		Advertising: AdvertisingConfig{
			FastMinInterval: D(20 * time.Millisecond),
			FastMaxInterval: D(30 * time.Millisecond),
			FastTimeout:     D(30 * time.Second),
			SlowMinInterval: D(1000 * time.Millisecond),
			SlowMaxInterval: D(1500 * time.Millisecond),
			SlowTimeout:     D(60 * time.Second),
		},
		Connection: ConnectionConfig{
			IdleTimeout: D(30 * time.Minute),
			Preferred: ParamSet{
				MinInterval: D(7500 * time.Microsecond),
				MaxInterval: D(15 * time.Millisecond),
				Latency:     4,
				Timeout:     D(2 * time.Second),
			},
			Alternate: ParamSet{
				MinInterval: D(11250 * time.Microsecond),
				MaxInterval: D(15 * time.Millisecond),
				Latency:     4,
				Timeout:     D(2 * time.Second),
			},
			PausePeriod:   D(5 * time.Second),
			CentralPeriod: D(1 * time.Second),
			RetryPeriod:   D(30 * time.Second),
			MaxAttempts:   4,
			SelfAttempts:  2,
		},
		Security: SecurityConfig{
			BondingChance:  D(30 * time.Second),
			PairingWait:    D(2 * time.Minute),
			MaxRevokes:     2,
			ButtonDebounce: D(100 * time.Millisecond),
			ButtonHold:     D(1 * time.Second),
		},
		Features: FeaturesConfig{
			PendingReportPeriod: D(6 * time.Second),
			RandomAddressPeriod: D(15 * time.Minute),
			RandomAddressRetry:  D(30 * time.Second),
		},
		Queue: QueueConfig{Capacity: 30},
		Store: StoreConfig{Path: storePath},
		KeySource: KeySourceConfig{
			Type:        "terminal",
			PairingKeys: []string{"ctrl", "shift", "p"},
		},
		LogLevel: "info",
	}
}

// Load reads and parses a config file. Files ending in .toml are parsed as
// TOML, anything else as YAML. Missing fields are filled with defaults.
// Tilde (~) in store.path and log_file is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Store.Path = expandTilde(cfg.Store.Path)
	cfg.LogFile = expandTilde(cfg.LogFile)

	return cfg, nil
}

const defaultHeader = `# blekbd configuration
# Durations use Go syntax: 20ms, 30s, 15m.
# Generated with default values; edit to taste.

`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}

	a := c.Advertising
	if a.FastMinInterval.Duration <= 0 || a.FastMaxInterval.Duration < a.FastMinInterval.Duration {
		return fmt.Errorf("advertising.fast_max_interval must be >= fast_min_interval > 0")
	}
	if a.SlowMinInterval.Duration <= 0 || a.SlowMaxInterval.Duration < a.SlowMinInterval.Duration {
		return fmt.Errorf("advertising.slow_max_interval must be >= slow_min_interval > 0")
	}
	if a.FastTimeout.Duration <= 0 || a.SlowTimeout.Duration <= 0 {
		return fmt.Errorf("advertising timeouts must be > 0")
	}

	cn := c.Connection
	for name, p := range map[string]ParamSet{"preferred": cn.Preferred, "alternate": cn.Alternate} {
		if p.MinInterval.Duration < 7500*time.Microsecond || p.MaxInterval.Duration > 4*time.Second {
			return fmt.Errorf("connection.%s intervals must lie within 7.5ms..4s", name)
		}
		if p.MaxInterval.Duration < p.MinInterval.Duration {
			return fmt.Errorf("connection.%s.max_interval must be >= min_interval", name)
		}
		if p.Timeout.Duration < 100*time.Millisecond || p.Timeout.Duration > 32*time.Second {
			return fmt.Errorf("connection.%s.timeout must lie within 100ms..32s", name)
		}
	}
	if cn.MaxAttempts < 1 {
		return fmt.Errorf("connection.max_attempts must be > 0")
	}
	if cn.SelfAttempts < 0 || cn.SelfAttempts > cn.MaxAttempts {
		return fmt.Errorf("connection.self_attempts must lie within 0..max_attempts")
	}
	if cn.PausePeriod.Duration <= 0 || cn.CentralPeriod.Duration <= 0 || cn.RetryPeriod.Duration <= 0 {
		return fmt.Errorf("connection periods must be > 0")
	}

	if c.Security.MaxRevokes < 1 {
		return fmt.Errorf("security.max_revokes must be > 0")
	}
	if c.Security.BondingChance.Duration <= 0 || c.Security.PairingWait.Duration <= 0 {
		return fmt.Errorf("security bonding timers must be > 0")
	}

	if c.Features.PendingReportWait && c.Features.PendingReportPeriod.Duration <= 0 {
		return fmt.Errorf("features.pending_report_period must be > 0 when pending_report_wait is set")
	}
	if c.Features.Privacy && c.Device.Seed == "" {
		return fmt.Errorf("features.privacy requires device.seed")
	}

	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be > 0")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	switch c.KeySource.Type {
	case "terminal", "hook":
	default:
		return fmt.Errorf("key_source.type must be \"terminal\" or \"hook\", got %q", c.KeySource.Type)
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be trace, debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
