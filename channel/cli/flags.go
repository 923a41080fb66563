package main

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/webbmaffian/go-gbl/config"
)

// cliConfig holds command-line overrides. Empty values keep the config file
// (or default) value.
type cliConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	Capacity    int
	Storage     string
	Watch       bool
	Interval    time.Duration
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}

	flag.StringVar(&cfg.ConfigPath, "config", getEnv("GBLFIFO_CONFIG", ""),
		"Path to YAML configuration file (env: GBLFIFO_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("GBLFIFO_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: GBLFIFO_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("GBLFIFO_LOG_FORMAT", ""),
		"Log format: json, text (env: GBLFIFO_LOG_FORMAT)")

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("GBLFIFO_METRICS_ADDR", ""),
		"Address of the Prometheus endpoint, empty to disable (env: GBLFIFO_METRICS_ADDR)")

	flag.IntVar(&cfg.Capacity, "capacity", getEnvInt("GBLFIFO_CAPACITY", 0),
		"Channel capacity in bytes (env: GBLFIFO_CAPACITY)")

	flag.StringVar(&cfg.Storage, "storage", getEnv("GBLFIFO_STORAGE", ""),
		"Buffer storage: heap, mapped (env: GBLFIFO_STORAGE)")

	flag.BoolVar(&cfg.Watch, "watch", getEnvBool("GBLFIFO_WATCH", false),
		"Show a live dashboard on stderr (env: GBLFIFO_WATCH)")

	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("GBLFIFO_WATCH_INTERVAL", 0),
		"Dashboard refresh interval (env: GBLFIFO_WATCH_INTERVAL)")

	flag.Parse()

	return cfg
}

func (c *cliConfig) apply(cfg *config.Config) {
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}

	if c.LogFormat != "" {
		cfg.Log.Format = c.LogFormat
	}

	if c.MetricsAddr != "" {
		cfg.Metrics.Addr = c.MetricsAddr
	}

	if c.Capacity != 0 {
		cfg.Channel.Capacity = c.Capacity
	}

	if c.Storage != "" {
		cfg.Channel.Storage = c.Storage
	}

	if c.Watch {
		cfg.Watch.Enabled = true
	}

	if c.Interval != 0 {
		cfg.Watch.Interval = c.Interval
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}

	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}

	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}

	return fallback
}
