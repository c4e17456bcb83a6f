package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validator validates configuration.
type Validator struct {
	// RequireToken demands a bot token. Offline CLI commands leave it off.
	RequireToken bool
	errors       ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator(requireToken bool) *Validator {
	return &Validator{RequireToken: requireToken}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	v.validateTelegram(&cfg.Telegram)
	v.validateStorage(&cfg.Storage)
	v.validateRedis(&cfg.Redis)
	v.validateLogger(&cfg.Logger)
	v.validateLabels(&cfg.Labels)
	v.validateMetrics(&cfg.Metrics)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateTelegram(cfg *TelegramConfig) {
	if v.RequireToken && strings.TrimSpace(cfg.Token) == "" {
		v.addError("telegram.token", "bot token is required")
	}
	if cfg.Proxy != "" {
		if _, err := url.Parse(cfg.Proxy); err != nil {
			v.addError("telegram.proxy", fmt.Sprintf("invalid proxy URL: %v", err))
		}
	}
	if cfg.PollTimeout < 0 {
		v.addError("telegram.poll_timeout", "must not be negative")
	}
	if cfg.TimeoutSeconds < 0 {
		v.addError("telegram.timeout_seconds", "must not be negative")
	}
}

func (v *Validator) validateStorage(cfg *StorageConfig) {
	if strings.TrimSpace(cfg.Path) == "" {
		v.addError("storage.path", "database path is required")
	}
}

func (v *Validator) validateRedis(cfg *RedisConfig) {
	if !cfg.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.addError("redis.addr", fmt.Sprintf("expected host:port: %v", err))
	}
	if cfg.DB < 0 {
		v.addError("redis.db", "must not be negative")
	}
	if cfg.TTLSeconds <= 0 {
		v.addError("redis.ttl_seconds", "must be positive when redis is enabled")
	}
}

func (v *Validator) validateLogger(cfg *LoggerConfig) {
	switch cfg.Level {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		v.addError("logger.level", fmt.Sprintf("unknown level %q", cfg.Level))
	}
}

func (v *Validator) validateLabels(cfg *LabelsConfig) {
	required := []struct {
		field string
		value string
	}{
		{"labels.start", cfg.Start},
		{"labels.help", cfg.Help},
		{"labels.parameters_title", cfg.ParametersTitle},
		{"labels.no_parameters", cfg.NoParameters},
		{"labels.set_usage", cfg.SetUsage},
		{"labels.button_prompt", cfg.ButtonPrompt},
		{"labels.command_failed", cfg.CommandFailed},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			v.addError(r.field, "must not be empty")
		}
	}

	if n := strings.Count(cfg.ParamChanged, "%s"); n != 2 {
		v.addError("labels.param_changed", fmt.Sprintf("expected two %%s placeholders, found %d", n))
	}
	if n := strings.Count(cfg.ButtonChosen, "%s"); n != 1 {
		v.addError("labels.button_chosen", fmt.Sprintf("expected one %%s placeholder, found %d", n))
	}
}

func (v *Validator) validateMetrics(cfg *MetricsConfig) {
	if !cfg.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		v.addError("metrics.listen", fmt.Sprintf("expected host:port: %v", err))
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// ValidateConfig validates cfg for a running bot.
func ValidateConfig(cfg *Config) error {
	return NewValidator(true).Validate(cfg)
}

// ValidateOffline validates cfg for commands that never talk to Telegram.
func ValidateOffline(cfg *Config) error {
	return NewValidator(false).Validate(cfg)
}
