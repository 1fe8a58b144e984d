// Package config loads the settings of the gosp command line tools from YAML
// and GOSP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/workspace-9/gosp"
)

// Config is the root configuration of gosp-device.
type Config struct {
	Log     LogConfig      `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Socket  SocketConfig   `mapstructure:"socket"`
	Devices []DeviceConfig `mapstructure:"devices"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// SocketConfig holds the tunables applied to every socket.
type SocketConfig struct {
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	QueueLen          int           `mapstructure:"queue_len"`
	MaxRecvSize       int           `mapstructure:"max_recv_size"`
}

// Apply copies the tunables onto conf.
func (s SocketConfig) Apply(conf *gosp.Config) {
	conf.SetReconnectInterval(s.ReconnectInterval)
	conf.SetReconnectMax(s.ReconnectMax)
	conf.SetConnectTimeout(s.ConnectTimeout)
	conf.SetQueueLen(s.QueueLen)
	conf.SetMaxRecvSize(s.MaxRecvSize)
}

// DeviceConfig describes one device. A device without a backend pattern
// loops messages back out of its frontend.
type DeviceConfig struct {
	Name     string         `mapstructure:"name"`
	Frontend EndpointConfig `mapstructure:"frontend"`
	Backend  EndpointConfig `mapstructure:"backend"`
}

// Loopback is true when the device has no backend.
func (d DeviceConfig) Loopback() bool {
	return d.Backend.Pattern == ""
}

// EndpointConfig is one raw socket of a device.
type EndpointConfig struct {
	Pattern string   `mapstructure:"pattern"`
	Bind    []string `mapstructure:"bind"`
	Connect []string `mapstructure:"connect"`
}

// Default returns a Config with the library defaults and no devices.
func Default() *Config {
	var conf gosp.Config
	conf.Default()

	return &Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/gosp-device.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{Path: "/metrics"},
		Socket: SocketConfig{
			ReconnectInterval: conf.ReconnectInterval(),
			ReconnectMax:      conf.ReconnectMax(),
			ConnectTimeout:    conf.ConnectTimeout(),
			QueueLen:          conf.QueueLen(),
			MaxRecvSize:       conf.MaxRecvSize(),
		},
	}
}

// Load reads the configuration at path. An empty path falls back to
// $GOSP_CONFIG, then to gosp.yaml in the working directory or ~/.gosp.
// Environment variables override file values, e.g. GOSP_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GOSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
	v.SetDefault("socket.reconnect_interval", cfg.Socket.ReconnectInterval)
	v.SetDefault("socket.reconnect_max", cfg.Socket.ReconnectMax)
	v.SetDefault("socket.connect_timeout", cfg.Socket.ConnectTimeout)
	v.SetDefault("socket.queue_len", cfg.Socket.QueueLen)
	v.SetDefault("socket.max_recv_size", cfg.Socket.MaxRecvSize)

	if path == "" {
		path = os.Getenv("GOSP_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gosp")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".gosp"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills blank optional fields.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	names := make(map[string]struct{}, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Name == "" {
			d.Name = fmt.Sprintf("device-%d", i)
		}
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("duplicate device name %q", d.Name)
		}
		names[d.Name] = struct{}{}

		if err := d.validate(); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
	}
	return nil
}

func (d *DeviceConfig) validate() error {
	front, err := d.Frontend.validate("frontend")
	if err != nil {
		return err
	}
	if d.Loopback() {
		if !front.CanSend() || !front.CanRecv() {
			return fmt.Errorf("loopback needs a pattern that sends and receives, got %s", front)
		}
		return nil
	}

	back, err := d.Backend.validate("backend")
	if err != nil {
		return err
	}
	if front.Peer() != back {
		return fmt.Errorf("%s cannot talk to %s", front, back)
	}
	return nil
}

func (e *EndpointConfig) validate(side string) (gosp.Pattern, error) {
	p, err := gosp.ParsePattern(e.Pattern)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", side, err)
	}
	e.Pattern = p.String()
	if len(e.Bind)+len(e.Connect) == 0 {
		return 0, fmt.Errorf("%s: no bind or connect address", side)
	}
	return p, nil
}
