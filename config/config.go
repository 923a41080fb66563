// Package config loads the service configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/webbmaffian/go-gbl/channel"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Channel ChannelConfig `yaml:"channel"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Watch   WatchConfig   `yaml:"watch"`
}

type ChannelConfig struct {
	Name         string `yaml:"name"`
	Capacity     int    `yaml:"capacity"`
	Storage      string `yaml:"storage"`       // heap or mapped
	NotifyPolicy string `yaml:"notify_policy"` // every-write or on-empty
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the endpoint
	Path string `yaml:"path"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			Name:         "gblfifo",
			Capacity:     channel.DefaultCapacity,
			Storage:      channel.StorageHeap.String(),
			NotifyPolicy: channel.NotifyEveryWrite.String(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Watch: WatchConfig{
			Interval: time.Second,
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err = Parse(b, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Channel.Capacity <= 0 {
		return fmt.Errorf("%w: channel.capacity must be positive", ErrInvalidConfig)
	}

	if _, err := channel.ParseStorage(c.Channel.Storage); err != nil {
		return fmt.Errorf("%w: channel.storage: %w", ErrInvalidConfig, err)
	}

	if _, err := parseNotifyPolicy(c.Channel.NotifyPolicy); err != nil {
		return fmt.Errorf("%w: channel.notify_policy: %w", ErrInvalidConfig, err)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log.format must be json or text", ErrInvalidConfig)
	}

	if c.Watch.Enabled && c.Watch.Interval <= 0 {
		return fmt.Errorf("%w: watch.interval must be positive", ErrInvalidConfig)
	}

	return nil
}

// ChannelOptions converts the channel section. Call Validate first.
func (c *Config) ChannelOptions(logger *slog.Logger, reg prometheus.Registerer) []channel.Option {
	storage, _ := channel.ParseStorage(c.Channel.Storage)
	policy, _ := parseNotifyPolicy(c.Channel.NotifyPolicy)

	return []channel.Option{
		channel.WithStorage(storage),
		channel.WithNotifyPolicy(policy),
		channel.WithLogger(logger),
		channel.WithMetrics(reg, c.Channel.Name),
	}
}

func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, fmt.Errorf("unknown level %q", level)
}

func parseNotifyPolicy(s string) (channel.NotifyPolicy, error) {
	switch s {
	case "", channel.NotifyEveryWrite.String():
		return channel.NotifyEveryWrite, nil
	case channel.NotifyOnEmpty.String():
		return channel.NotifyOnEmpty, nil
	}

	return 0, fmt.Errorf("unknown policy %q", s)
}
