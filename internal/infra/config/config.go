// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Device  DeviceConfig  `yaml:"device"`
	Spotify SpotifyConfig `yaml:"spotify"`
}

// ServerConfig represents the HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8177"`
}

// BridgeConfig represents the core bridge behavior.
type BridgeConfig struct {
	PollIntervalMs int   `yaml:"poll_interval_ms" default:"1000" validate:"gte=100,lte=60000"`
	ControlEnabled *bool `yaml:"control_enabled"` // default true, pointer so an explicit false survives
}

// DeviceConfig selects the target playback device. Both fields optional;
// ID wins when both are set.
type DeviceConfig struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	AutoTransferOnStart *bool  `yaml:"auto_transfer_on_start"` // default true
}

// SpotifyConfig represents Spotify API credentials. All fields optional:
// a bridge without credentials serves empty state and rejects commands
// instead of failing startup.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables take precedence for credentials.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Config file is optional, env vars may carry everything needed.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("SPOTIFY_DEVICE_ID"); v != "" {
		c.Device.ID = v
	}
	if v := os.Getenv("SPOTIFY_DEVICE_NAME"); v != "" {
		c.Device.Name = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Bridge.PollIntervalMs) * time.Millisecond
}

// ControlEnabled reports the control policy flag (default true).
func (c *Config) ControlEnabled() bool {
	return c.Bridge.ControlEnabled == nil || *c.Bridge.ControlEnabled
}

// AutoTransferOnStart reports whether playback should be transferred to
// the selected device at startup (default true).
func (c *Config) AutoTransferOnStart() bool {
	return c.Device.AutoTransferOnStart == nil || *c.Device.AutoTransferOnStart
}

// SpotifyConfigured reports whether all Spotify credentials are present.
func (c *Config) SpotifyConfigured() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" && c.Spotify.RefreshToken != ""
}
