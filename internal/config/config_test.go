package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Coordinator
	if cfg.Coordinator.MaxRetries != 3 {
		t.Errorf("Coordinator.MaxRetries = %d, want 3", cfg.Coordinator.MaxRetries)
	}
	if cfg.Coordinator.RetryDelay != 30*time.Second {
		t.Errorf("Coordinator.RetryDelay = %v, want 30s", cfg.Coordinator.RetryDelay)
	}
	if cfg.Coordinator.TaskTimeout != 0 {
		t.Errorf("Coordinator.TaskTimeout = %v, want 0", cfg.Coordinator.TaskTimeout)
	}

	// Tick cadences
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Errorf("Scheduler.TickInterval = %v, want 1m", cfg.Scheduler.TickInterval)
	}
	if cfg.Rules.TickInterval != 30*time.Second {
		t.Errorf("Rules.TickInterval = %v, want 30s", cfg.Rules.TickInterval)
	}
	if cfg.Threshold.TickInterval != 5*time.Minute {
		t.Errorf("Threshold.TickInterval = %v, want 5m", cfg.Threshold.TickInterval)
	}

	// Retention windows
	if cfg.Threshold.Retention != 7*24*time.Hour {
		t.Errorf("Threshold.Retention = %v, want 168h", cfg.Threshold.Retention)
	}
	if cfg.Threshold.EvaluationWindow != time.Hour {
		t.Errorf("Threshold.EvaluationWindow = %v, want 1h", cfg.Threshold.EvaluationWindow)
	}
	if cfg.Bus.HandoffTTL != 5*time.Minute {
		t.Errorf("Bus.HandoffTTL = %v, want 5m", cfg.Bus.HandoffTTL)
	}
	if cfg.Bus.ShareTTL != 10*time.Minute {
		t.Errorf("Bus.ShareTTL = %v, want 10m", cfg.Bus.ShareTTL)
	}

	if cfg.Archive.Driver != "log" {
		t.Errorf("Archive.Driver = %q, want log", cfg.Archive.Driver)
	}
	if cfg.API.Addr == "" {
		t.Error("API.Addr should have a default")
	}
}

func TestSchedulerConfig_Location(t *testing.T) {
	tests := []struct {
		tz   string
		want string
	}{
		{"", time.Local.String()},
		{"Local", time.Local.String()},
		{"UTC", "UTC"},
		{"Not/AZone", time.Local.String()},
	}

	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			c := SchedulerConfig{Timezone: tt.tz}
			if got := c.Location().String(); got != tt.want {
				t.Errorf("Location() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggingConfig_ResolveLogFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	c := LoggingConfig{}
	if got := c.ResolveLogFile(); got != "/custom/config/conductor/conductor.log" {
		t.Errorf("ResolveLogFile() = %q", got)
	}

	c.File = "/var/log/conductor.log"
	if got := c.ResolveLogFile(); got != "/var/log/conductor.log" {
		t.Errorf("ResolveLogFile() = %q", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/conductor" {
			t.Errorf("ConfigDir() = %q, want /custom/config/conductor", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home := t.TempDir()
		t.Setenv("HOME", home)

		want := filepath.Join(home, ".config", "conductor")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/conductor/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Coordinator.MaxRetries != 3 {
		t.Errorf("Get().Coordinator.MaxRetries = %d, want 3", cfg.Coordinator.MaxRetries)
	}
	if cfg.Bus.SweepInterval != 30*time.Second {
		t.Errorf("Get().Bus.SweepInterval = %v, want 30s", cfg.Bus.SweepInterval)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	yaml := `
coordinator:
  max_retries: 5
  retry_delay: 2s
  max_concurrent:
    critical: 4
scheduler:
  timezone: UTC
archive:
  driver: redis
  redis:
    addr: redis:6379
workers:
  - id: analyst-1
    type: analytics
    capabilities: [reporting]
    backend: codex
`
	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Coordinator.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Coordinator.MaxRetries)
	}
	if cfg.Coordinator.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.Coordinator.RetryDelay)
	}
	if cfg.Coordinator.MaxConcurrent["critical"] != 4 {
		t.Errorf("MaxConcurrent[critical] = %d, want 4", cfg.Coordinator.MaxConcurrent["critical"])
	}
	// Untouched sections keep their defaults
	if cfg.Rules.TickInterval != 30*time.Second {
		t.Errorf("Rules.TickInterval = %v, want 30s", cfg.Rules.TickInterval)
	}
	if len(cfg.Workers) != 1 || cfg.Workers[0].Type != "analytics" || cfg.Workers[0].Capabilities[0] != "reporting" {
		t.Errorf("Workers = %+v", cfg.Workers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("coordinator.max_retries", 0)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail validation")
	}
	if !strings.Contains(err.Error(), "coordinator.max_retries") {
		t.Errorf("error should mention the field: %v", err)
	}
}
