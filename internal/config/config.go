// Package config loads the daemon configuration from defaults, an optional
// yaml file, and SCOPE_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scopeworks/nexstar_interface/tracker"
)

type Config struct {
	Mount   MountConfig   `yaml:"mount"`
	Tracker TrackerConfig `yaml:"tracker"`
	Server  ServerConfig  `yaml:"server"`
	Power   PowerConfig   `yaml:"power"`
	Logging LoggingConfig `yaml:"logging"`
	Auth    AuthConfig    `yaml:"auth"`
}

type MountConfig struct {
	// Port is a local serial device; Addr a TCP endpoint (WiFi bridge).
	// Addr wins when both are set.
	Port    string        `yaml:"port"`
	Baud    int           `yaml:"baud"`
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
	Verbose bool          `yaml:"verbose"`
}

type TrackerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	AlertThreshold float64       `yaml:"alert_threshold"`
	ErrorLimit     int           `yaml:"error_limit"`
	AlertCooldown  time.Duration `yaml:"alert_cooldown"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	RotctldAddr  string        `yaml:"rotctld_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PowerConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// URL points at a remote scope_power_bridge instead of a local RTU port.
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	// File enables rotated logging; empty logs to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AuthConfig struct {
	// Secret enables JWT bearer auth on mutating API routes when non-empty.
	Secret string `yaml:"secret"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	c.Mount.Baud = 9600
	c.Mount.Timeout = 2 * time.Second

	c.Tracker.Interval = 2 * time.Second
	c.Tracker.AlertThreshold = 5.0
	c.Tracker.ErrorLimit = 3
	c.Tracker.AlertCooldown = 5 * time.Second

	c.Server.Addr = "127.0.0.1:8502"
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second

	c.Power.Baud = 19200

	c.Logging.MaxSizeMB = 50
	c.Logging.MaxBackups = 3
	c.Logging.MaxAgeDays = 28
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("SCOPE_MOUNT_PORT"); v != "" {
		c.Mount.Port = v
	}
	if v := os.Getenv("SCOPE_MOUNT_ADDR"); v != "" {
		c.Mount.Addr = v
	}
	if v := os.Getenv("SCOPE_MOUNT_BAUD"); v != "" {
		if b, err := strconv.Atoi(v); err == nil {
			c.Mount.Baud = b
		}
	}
	if v := os.Getenv("SCOPE_MOUNT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Mount.Timeout = d
		}
	}
	if v := os.Getenv("SCOPE_TRACKER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Tracker.Interval = d
		}
	}
	if v := os.Getenv("SCOPE_TRACKER_ALERT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracker.AlertThreshold = f
		}
	}
	if v := os.Getenv("SCOPE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SCOPE_ROTCTLD_ADDR"); v != "" {
		c.Server.RotctldAddr = v
	}
	if v := os.Getenv("SCOPE_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("SCOPE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

func (c *Config) validate() error {
	if c.Mount.Baud <= 0 {
		return fmt.Errorf("mount baud must be positive")
	}
	if c.Mount.Timeout <= 0 {
		return fmt.Errorf("mount timeout must be positive")
	}
	if c.Tracker.Interval < tracker.MinInterval || c.Tracker.Interval > tracker.MaxInterval {
		return fmt.Errorf("tracker interval %v outside [%v,%v]", c.Tracker.Interval, tracker.MinInterval, tracker.MaxInterval)
	}
	if c.Tracker.AlertThreshold < tracker.MinAlertThreshold || c.Tracker.AlertThreshold > tracker.MaxAlertThreshold {
		return fmt.Errorf("tracker alert threshold %v outside [%v,%v]", c.Tracker.AlertThreshold, tracker.MinAlertThreshold, tracker.MaxAlertThreshold)
	}
	if c.Tracker.ErrorLimit < 1 {
		return fmt.Errorf("tracker error limit must be at least 1")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	return nil
}
