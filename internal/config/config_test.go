package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mount.Baud != 9600 {
		t.Errorf("Mount.Baud = %d, want 9600", cfg.Mount.Baud)
	}
	if cfg.Tracker.Interval != 2*time.Second {
		t.Errorf("Tracker.Interval = %v, want 2s", cfg.Tracker.Interval)
	}
	if cfg.Tracker.AlertThreshold != 5.0 {
		t.Errorf("Tracker.AlertThreshold = %v, want 5", cfg.Tracker.AlertThreshold)
	}
	if cfg.Server.Addr != "127.0.0.1:8502" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scope.yaml")
	body := `
mount:
  addr: "10.0.0.5:4030"
  timeout: 3s
tracker:
  interval: 1s
server:
  addr: "0.0.0.0:9000"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCOPE_TRACKER_INTERVAL", "4s")
	t.Setenv("SCOPE_AUTH_SECRET", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mount.Addr != "10.0.0.5:4030" {
		t.Errorf("Mount.Addr = %q", cfg.Mount.Addr)
	}
	if cfg.Mount.Timeout != 3*time.Second {
		t.Errorf("Mount.Timeout = %v", cfg.Mount.Timeout)
	}
	// Environment wins over the file.
	if cfg.Tracker.Interval != 4*time.Second {
		t.Errorf("Tracker.Interval = %v, want env override 4s", cfg.Tracker.Interval)
	}
	if cfg.Auth.Secret != "hunter2" {
		t.Errorf("Auth.Secret = %q", cfg.Auth.Secret)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestValidation(t *testing.T) {
	for name, body := range map[string]string{
		"interval too small": "tracker:\n  interval: 100ms\n",
		"interval too large": "tracker:\n  interval: 2m\n",
		"threshold too low":  "tracker:\n  alert_threshold: 0.01\n",
		"zero error limit":   "tracker:\n  error_limit: -1\n",
		"empty server addr":  "server:\n  addr: \"\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scope.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}
