package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigPathEnv overrides the config file location when no path is given.
const ConfigPathEnv = "SPINDRIFT_CONFIG_FILE"

// Loader handles configuration loading with Viper.
type Loader struct {
	viper *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".spindrift"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPINDRIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{viper: v}
}

// Load loads the configuration from file and environment variables.
// If configPath is empty, SPINDRIFT_CONFIG_FILE and then the default search
// paths are used. A missing file is created with defaults.
func (l *Loader) Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(configPath) == "" {
		configPath = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	explicitPath := strings.TrimSpace(configPath) != ""
	resolvedPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if explicitPath {
		// Keep the database next to an explicitly chosen config file.
		cfg.Storage.Path = filepath.Join(filepath.Dir(resolvedPath), "config.db")
		l.viper.SetConfigFile(resolvedPath)
		l.viper.SetConfigType(formatFor(resolvedPath))
	}

	bindEnv(l.viper)

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			if err := l.Save(resolvedPath, cfg); err != nil {
				return nil, fmt.Errorf("creating config file: %w", err)
			}
			l.viper.SetConfigFile(resolvedPath)
			// Environment overrides still apply to a fresh file.
			if err := l.viper.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("unmarshaling config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Reload re-reads the file the loader was last pointed at.
func (l *Loader) Reload() (*Config, error) {
	return l.Load(l.viper.ConfigFileUsed())
}

// Save writes cfg to path. The format follows the file extension.
func (l *Loader) Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType(formatFor(path))
	sections := map[string]any{
		"telegram": cfg.Telegram,
		"storage":  cfg.Storage,
		"redis":    cfg.Redis,
		"logger":   cfg.Logger,
		"labels":   cfg.Labels,
		"metrics":  cfg.Metrics,
	}
	for key, section := range sections {
		m, err := toMap(section)
		if err != nil {
			return fmt.Errorf("encoding %s section: %w", key, err)
		}
		v.Set(key, m)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// formatFor picks the viper config type from the file extension.
func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// toMap flattens a section through its json tags, which match the
// mapstructure keys, so every output format uses the same key names.
func toMap(section any) (map[string]any, error) {
	data, err := json.Marshal(section)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetConfigPath returns the path of the loaded config file.
func (l *Loader) GetConfigPath() string {
	return l.viper.ConfigFileUsed()
}

// GetConfigHome returns the default config directory.
func GetConfigHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".spindrift"), nil
}

func resolveConfigPath(configPath string) (string, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		home, err := GetConfigHome()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, "config.json")
	}
	abs, err := filepath.Abs(expandPath(path))
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return abs, nil
}

// bindEnv makes nested keys visible to AutomaticEnv during Unmarshal.
// Viper only consults the environment for keys it already knows about.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"telegram.token",
		"telegram.proxy",
		"storage.path",
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",
		"logger.level",
		"metrics.enabled",
		"metrics.listen",
	} {
		_ = v.BindEnv(key)
	}
}
