package settings

import (
	"context"
	"io"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"spindrift/pkg/config"
	"spindrift/pkg/logger"
)

// Module provides the settings Store, cached by redis when enabled.
var Module = fx.Module("settings",
	fx.Provide(ProvideSQLStore),
	fx.Provide(ProvideStore),
)

// ProvideSQLStore opens the database. Startup fails if it cannot be opened.
func ProvideSQLStore(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) (*SQLStore, error) {
	path := cfg.StoragePath()

	store, err := Open(context.Background(), path)
	if err != nil {
		log.Error("Failed to open settings database", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	log.Info("Settings database ready", zap.String("path", path))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// ProvideStore returns the Store handlers use.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config, sqlStore *SQLStore, log *logger.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, closer, err := WithCache(ctx, sqlStore, cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})
	}
	return store, nil
}

// WithCache wraps store with the redis cache when rc enables it. The
// returned closer is nil when no cache was set up.
func WithCache(ctx context.Context, store Store, rc config.RedisConfig, log *logger.Logger) (Store, io.Closer, error) {
	if !rc.Enabled {
		return store, nil, nil
	}

	cache, err := NewRedisCache(ctx, rc.Addr, rc.Password, rc.DB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Settings cache enabled",
		zap.String("addr", rc.Addr),
		zap.Int("db", rc.DB),
		zap.String("prefix", rc.Prefix))

	ttl := time.Duration(rc.TTLSeconds) * time.Second
	cached := NewCachedStore(store, cache, rc.Prefix, ttl, log.Named("settings-cache"))
	return cached, &cacheCloser{store: cached, cache: cache}, nil
}

// cacheCloser lets pending invalidations reach redis before the client closes.
type cacheCloser struct {
	store *CachedStore
	cache io.Closer
}

func (c *cacheCloser) Close() error {
	c.store.Flush()
	return c.cache.Close()
}
