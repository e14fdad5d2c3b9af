package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Pool.MaxSessions != 3 {
		t.Errorf("Pool.MaxSessions = %d, want 3", cfg.Pool.MaxSessions)
	}
	if cfg.Pool.HealthIntervalSeconds != 5 {
		t.Errorf("Pool.HealthIntervalSeconds = %d, want 5", cfg.Pool.HealthIntervalSeconds)
	}
	if cfg.Pool.SendTimeoutSeconds != 300 {
		t.Errorf("Pool.SendTimeoutSeconds = %d, want 300", cfg.Pool.SendTimeoutSeconds)
	}
	if cfg.Pool.OutputBufferLines != 500 {
		t.Errorf("Pool.OutputBufferLines = %d, want 500", cfg.Pool.OutputBufferLines)
	}
	if cfg.Supervisor.PollIntervalSeconds != 60 {
		t.Errorf("Supervisor.PollIntervalSeconds = %d, want 60", cfg.Supervisor.PollIntervalSeconds)
	}
	if cfg.Supervisor.CheckpointIntervalHours != 2 {
		t.Errorf("Supervisor.CheckpointIntervalHours = %d, want 2", cfg.Supervisor.CheckpointIntervalHours)
	}
	if cfg.Supervisor.MaxRetries != 5 {
		t.Errorf("Supervisor.MaxRetries = %d, want 5", cfg.Supervisor.MaxRetries)
	}
	if cfg.Context.TokenBudget != 150_000 {
		t.Errorf("Context.TokenBudget = %d, want 150000", cfg.Context.TokenBudget)
	}
	if len(cfg.Planning.VagueMarkers) == 0 {
		t.Error("Planning.VagueMarkers should not be empty by default")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.Pool.HealthInterval(); got != 5*time.Second {
		t.Errorf("HealthInterval() = %v, want 5s", got)
	}
	if got := cfg.Pool.SendTimeout(); got != 300*time.Second {
		t.Errorf("SendTimeout() = %v, want 300s", got)
	}
	if got := cfg.Supervisor.PollInterval(); got != time.Minute {
		t.Errorf("PollInterval() = %v, want 1m", got)
	}
	if got := cfg.Supervisor.CheckpointInterval(); got != 2*time.Hour {
		t.Errorf("CheckpointInterval() = %v, want 2h", got)
	}
}

func TestSetDefaultsAndLoad(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Pool.MaxSessions != 3 {
		t.Errorf("Pool.MaxSessions = %d, want 3", cfg.Pool.MaxSessions)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()
	viper.Set("pool.max_sessions", 0)

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject pool.max_sessions = 0")
	}
}

func TestResolveStateDir(t *testing.T) {
	p := PathsConfig{StateDir: "/tmp/overseer-state"}
	if got := p.ResolveStateDir(); got != "/tmp/overseer-state" {
		t.Errorf("ResolveStateDir() = %q, want explicit dir", got)
	}

	p = PathsConfig{}
	if got := p.ResolveStateDir(); got == "" {
		t.Error("ResolveStateDir() should fall back to a config-dir default")
	}
}
