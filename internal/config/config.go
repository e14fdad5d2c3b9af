package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Overseer engine configuration
type Config struct {
	Pool       PoolConfig       `mapstructure:"pool"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Context    ContextConfig    `mapstructure:"context"`
	Planning   PlanningConfig   `mapstructure:"planning"`
	Verify     VerifyConfig     `mapstructure:"verify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

// PoolConfig controls the agent session pool
type PoolConfig struct {
	// MaxSessions caps the number of concurrently non-terminal sessions.
	// Start requests beyond the cap fail immediately with PoolExhausted.
	MaxSessions int `mapstructure:"max_sessions"`
	// HealthIntervalSeconds is how often the health loop polls every
	// non-terminal session
	HealthIntervalSeconds int `mapstructure:"health_interval_seconds"`
	// LivenessThresholdSeconds marks a session FAILED when it has been
	// unresponsive for longer than this
	LivenessThresholdSeconds int `mapstructure:"liveness_threshold_seconds"`
	// SendTimeoutSeconds bounds a single agent round trip
	SendTimeoutSeconds int `mapstructure:"send_timeout_seconds"`
	// OutputBufferLines is how many recent output lines each session retains
	OutputBufferLines int `mapstructure:"output_buffer_lines"`
}

// SupervisorConfig controls per-task supervision
type SupervisorConfig struct {
	// PollIntervalSeconds is the monitoring loop interval
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// CheckpointIntervalHours is how often a periodic checkpoint is persisted
	CheckpointIntervalHours int `mapstructure:"checkpoint_interval_hours"`
	// MaxRetries is the number of consecutive failures before escalation
	MaxRetries int `mapstructure:"max_retries"`
}

// ContextConfig controls subagent context assembly
type ContextConfig struct {
	// TokenBudget caps the estimated token count of an assembled context
	TokenBudget int `mapstructure:"token_budget"`
	// MaxDocs limits how many documentation snippets are included
	MaxDocs int `mapstructure:"max_docs"`
	// MaxHistoryItems limits how many prior task outcomes are summarized
	MaxHistoryItems int `mapstructure:"max_history_items"`
}

// PlanningConfig controls the planning Q&A engine
type PlanningConfig struct {
	// VagueMarkers are phrases that classify an answer as vague and
	// trigger a follow-up question in the same category
	VagueMarkers []string `mapstructure:"vague_markers"`
}

// VerifyConfig controls the verification gate's default check runner
type VerifyConfig struct {
	// CheckTimeoutSeconds bounds a single check subprocess
	CheckTimeoutSeconds int `mapstructure:"check_timeout_seconds"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled turns file logging on or off
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
}

// PathsConfig controls where durable state lives
type PathsConfig struct {
	// StateDir is the root directory for persisted plans, session records,
	// and checkpoints. Empty means <config dir>/state.
	StateDir string `mapstructure:"state_dir"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxSessions:              3,
			HealthIntervalSeconds:    5,
			LivenessThresholdSeconds: 30,
			SendTimeoutSeconds:       300,
			OutputBufferLines:        500,
		},
		Supervisor: SupervisorConfig{
			PollIntervalSeconds:     60,
			CheckpointIntervalHours: 2,
			MaxRetries:              5,
		},
		Context: ContextConfig{
			TokenBudget:     150_000,
			MaxDocs:         5,
			MaxHistoryItems: 10,
		},
		Planning: PlanningConfig{
			VagueMarkers: []string{"not sure", "maybe", "i don't know", "dont know", "whatever", "no idea"},
		},
		Verify: VerifyConfig{
			CheckTimeoutSeconds: 300,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Paths: PathsConfig{
			StateDir: "",
		},
	}
}

// HealthInterval returns the health poll interval as a time.Duration
func (c *PoolConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

// LivenessThreshold returns the unresponsiveness cutoff as a time.Duration
func (c *PoolConfig) LivenessThreshold() time.Duration {
	return time.Duration(c.LivenessThresholdSeconds) * time.Second
}

// SendTimeout returns the agent round-trip timeout as a time.Duration
func (c *PoolConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// PollInterval returns the supervision loop interval as a time.Duration
func (c *SupervisorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// CheckpointInterval returns the checkpoint interval as a time.Duration
func (c *SupervisorConfig) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalHours) * time.Hour
}

// CheckTimeout returns the per-check timeout as a time.Duration
func (c *VerifyConfig) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("pool.max_sessions", defaults.Pool.MaxSessions)
	viper.SetDefault("pool.health_interval_seconds", defaults.Pool.HealthIntervalSeconds)
	viper.SetDefault("pool.liveness_threshold_seconds", defaults.Pool.LivenessThresholdSeconds)
	viper.SetDefault("pool.send_timeout_seconds", defaults.Pool.SendTimeoutSeconds)
	viper.SetDefault("pool.output_buffer_lines", defaults.Pool.OutputBufferLines)

	viper.SetDefault("supervisor.poll_interval_seconds", defaults.Supervisor.PollIntervalSeconds)
	viper.SetDefault("supervisor.checkpoint_interval_hours", defaults.Supervisor.CheckpointIntervalHours)
	viper.SetDefault("supervisor.max_retries", defaults.Supervisor.MaxRetries)

	viper.SetDefault("context.token_budget", defaults.Context.TokenBudget)
	viper.SetDefault("context.max_docs", defaults.Context.MaxDocs)
	viper.SetDefault("context.max_history_items", defaults.Context.MaxHistoryItems)

	viper.SetDefault("planning.vague_markers", defaults.Planning.VagueMarkers)

	viper.SetDefault("verify.check_timeout_seconds", defaults.Verify.CheckTimeoutSeconds)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "overseer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".overseer"
	}
	return filepath.Join(home, ".config", "overseer")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolveStateDir returns the directory for durable engine state.
// An explicit state_dir wins; otherwise <config dir>/state.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir != "" {
		return p.StateDir
	}
	return filepath.Join(ConfigDir(), "state")
}
