// Package config provides configuration management for spindrift.
// It uses Viper for loading with support for:
// - Multiple formats (JSON, YAML, TOML)
// - Environment variables (SPINDRIFT_ prefix)
// - Hot-reload of user-facing labels
// - Default values
package config

import (
	"os"
	"path/filepath"
	"sync"
)

// Config represents the complete spindrift configuration.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram" json:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage" json:"storage"`
	Redis    RedisConfig    `mapstructure:"redis" json:"redis"`
	Logger   LoggerConfig   `mapstructure:"logger" json:"logger"`
	Labels   LabelsConfig   `mapstructure:"labels" json:"labels"`
	Metrics  MetricsConfig  `mapstructure:"metrics" json:"metrics"`
	mu       sync.RWMutex
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	Token          string   `mapstructure:"token" json:"token"`
	Proxy          string   `mapstructure:"proxy" json:"proxy"`
	AllowFrom      []string `mapstructure:"allow_from" json:"allow_from"`
	PollTimeout    int      `mapstructure:"poll_timeout" json:"poll_timeout"`       // seconds, long-poll window
	TimeoutSeconds int      `mapstructure:"timeout_seconds" json:"timeout_seconds"` // per-update handler budget
	SyncCommands   bool     `mapstructure:"sync_commands" json:"sync_commands"`
}

// StorageConfig locates the per-user settings database.
type StorageConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// RedisConfig enables the read-through cache in front of the settings store.
type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	Addr       string `mapstructure:"addr" json:"addr"`
	Password   string `mapstructure:"password" json:"password"`
	DB         int    `mapstructure:"db" json:"db"`
	Prefix     string `mapstructure:"prefix" json:"prefix"`
	// TTLSeconds bounds how long a cached config can outlive a write whose
	// invalidation failed.
	TTLSeconds int    `mapstructure:"ttl_seconds" json:"ttl_seconds"`
}

// LoggerConfig mirrors logger.Config in a serializable form.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	OutputPath  string `mapstructure:"output_path" json:"output_path"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress"`
	Development bool   `mapstructure:"development" json:"development"`
}

// LabelsConfig holds every user-facing string the bot sends.
// Labels with placeholders use fmt verbs: ParamChanged takes the parameter
// and the value, ButtonChosen takes the chosen label.
type LabelsConfig struct {
	Start           string `mapstructure:"start" json:"start"`
	Help            string `mapstructure:"help" json:"help"`
	ParametersTitle string `mapstructure:"parameters_title" json:"parameters_title"`
	NoParameters    string `mapstructure:"no_parameters" json:"no_parameters"`
	ParamChanged    string `mapstructure:"param_changed" json:"param_changed"`
	SetUsage        string `mapstructure:"set_usage" json:"set_usage"`
	ButtonPrompt    string `mapstructure:"button_prompt" json:"button_prompt"`
	ButtonChosen    string `mapstructure:"button_chosen" json:"button_chosen"`
	CommandFailed   string `mapstructure:"command_failed" json:"command_failed"`
}

// MetricsConfig exposes Prometheus metrics over HTTP.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Listen  string `mapstructure:"listen" json:"listen"`
}

// DefaultLabels returns the stock English labels.
func DefaultLabels() LabelsConfig {
	return LabelsConfig{
		Start: "Hello and welcome! Start using me right away or ask for /help :)",
		Help: "The available commands are:\n" +
			"→ /start: Shows the starting dialog\n" +
			"→ /help: Shows this message\n" +
			"→ /set <param> <x>: Sets parameter <param> to value <x>. Like `/set a 4`\n" +
			"→ /params: Shows list of all specified parameters",
		ParametersTitle: "Parameters are:",
		NoParameters:    "No parameters specified",
		ParamChanged:    `The parameter "%s" successfully set to "%s"`,
		SetUsage:        "Usage: /set <param> <value>",
		ButtonPrompt:    "Rate:",
		ButtonChosen:    `You chose "%s"`,
		CommandFailed:   "Sorry, something went wrong while running this command.",
	}
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".spindrift")

	return &Config{
		Telegram: TelegramConfig{
			AllowFrom:      []string{},
			PollTimeout:    50,
			TimeoutSeconds: 60,
			SyncCommands:   true,
		},
		Storage: StorageConfig{
			Path: filepath.Join(base, "config.db"),
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			Prefix:     "spindrift:",
			TTLSeconds: 600,
		},
		Logger: LoggerConfig{
			Level:      "info",
			OutputPath: filepath.Join(base, "logs", "spindrift.log"),
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Labels: DefaultLabels(),
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// StoragePath returns the expanded settings database path.
func (c *Config) StoragePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandPath(c.Storage.Path)
}

// CurrentLabels returns a copy of the labels, safe to call during reloads.
func (c *Config) CurrentLabels() LabelsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Labels
}

// CurrentTelegram returns a copy of the telegram section.
func (c *Config) CurrentTelegram() TelegramConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.Telegram
	t.AllowFrom = append([]string(nil), c.Telegram.AllowFrom...)
	return t
}

// replaceFrom copies every section from other under the write lock.
func (c *Config) replaceFrom(other *Config) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Telegram = other.Telegram
	c.Storage = other.Storage
	c.Redis = other.Redis
	c.Logger = other.Logger
	c.Labels = other.Labels
	c.Metrics = other.Metrics
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
