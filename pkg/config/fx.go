package config

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"spindrift/pkg/logger"
)

// Path is the config file chosen on the command line. Empty means the
// default search order.
type Path string

// Module provides configuration for fx dependency injection.
// The caller supplies a Path. The watcher needs the logger module.
var Module = fx.Module("config",
	fx.Provide(ProvideLoader),
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLoggerConfig),
	fx.Provide(ProvideWatcher),
)

// ProvideLoader provides a configuration loader.
func ProvideLoader() *Loader {
	return NewLoader()
}

// ProvideConfig loads and validates the configuration for a running bot.
func ProvideConfig(loader *Loader, path Path) (*Config, error) {
	cfg, err := loader.Load(string(path))
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProvideLoggerConfig derives the logger settings from the loaded config.
func ProvideLoggerConfig(cfg *Config) *logger.Config {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return cfg.Logger.ToLoggerConfig()
}

// ProvideWatcher provides a configuration watcher with hot-reload.
func ProvideWatcher(loader *Loader, cfg *Config, lc fx.Lifecycle, log *logger.Logger) *Watcher {
	watcher := NewWatcher(loader, cfg, func(err error) {
		log.Warn("Configuration reload failed", zap.Error(err))
	})

	watcher.AddHandler(func(newCfg *Config) error {
		log.Info("Configuration reloaded", zap.String("file", loader.GetConfigPath()))
		return nil
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting configuration watcher")
			return watcher.Start()
		},
		OnStop: func(ctx context.Context) error {
			watcher.Stop()
			return nil
		},
	})

	return watcher
}
