package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.max_sessions")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateSupervisor()...)
	errors = append(errors, c.validateContext()...)
	errors = append(errors, c.validateVerify()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.MaxSessions < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.max_sessions",
			Value:   c.Pool.MaxSessions,
			Message: "must be at least 1",
		})
	}
	if c.Pool.HealthIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.health_interval_seconds",
			Value:   c.Pool.HealthIntervalSeconds,
			Message: "must be at least 1 second",
		})
	}
	if c.Pool.LivenessThresholdSeconds < c.Pool.HealthIntervalSeconds {
		errors = append(errors, ValidationError{
			Field:   "pool.liveness_threshold_seconds",
			Value:   c.Pool.LivenessThresholdSeconds,
			Message: "must not be shorter than the health interval",
		})
	}
	if c.Pool.SendTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.send_timeout_seconds",
			Value:   c.Pool.SendTimeoutSeconds,
			Message: "must be at least 1 second",
		})
	}
	if c.Pool.OutputBufferLines < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.output_buffer_lines",
			Value:   c.Pool.OutputBufferLines,
			Message: "must be at least 1 line",
		})
	}

	return errors
}

// validateSupervisor validates the SupervisorConfig
func (c *Config) validateSupervisor() []ValidationError {
	var errors []ValidationError

	if c.Supervisor.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "supervisor.poll_interval_seconds",
			Value:   c.Supervisor.PollIntervalSeconds,
			Message: "must be at least 1 second",
		})
	}
	if c.Supervisor.CheckpointIntervalHours < 1 {
		errors = append(errors, ValidationError{
			Field:   "supervisor.checkpoint_interval_hours",
			Value:   c.Supervisor.CheckpointIntervalHours,
			Message: "must be at least 1 hour",
		})
	}
	if c.Supervisor.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "supervisor.max_retries",
			Value:   c.Supervisor.MaxRetries,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateContext validates the ContextConfig
func (c *Config) validateContext() []ValidationError {
	var errors []ValidationError

	if c.Context.TokenBudget < 1000 {
		errors = append(errors, ValidationError{
			Field:   "context.token_budget",
			Value:   c.Context.TokenBudget,
			Message: "must be at least 1000 tokens",
		})
	}
	if c.Context.MaxDocs < 0 {
		errors = append(errors, ValidationError{
			Field:   "context.max_docs",
			Value:   c.Context.MaxDocs,
			Message: "must be non-negative",
		})
	}
	if c.Context.MaxHistoryItems < 0 {
		errors = append(errors, ValidationError{
			Field:   "context.max_history_items",
			Value:   c.Context.MaxHistoryItems,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateVerify validates the VerifyConfig
func (c *Config) validateVerify() []ValidationError {
	var errors []ValidationError

	if c.Verify.CheckTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "verify.check_timeout_seconds",
			Value:   c.Verify.CheckTimeoutSeconds,
			Message: "must be at least 1 second",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
