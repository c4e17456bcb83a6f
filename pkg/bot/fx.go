package bot

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"spindrift/pkg/channels/telegram"
	"spindrift/pkg/config"
	"spindrift/pkg/logger"
	"spindrift/pkg/settings"
)

// Module provides the Bot and runs it for the lifetime of the app.
// Application code adds its commands with fx.Invoke before start.
var Module = fx.Module("bot",
	fx.Provide(ProvideBot),
	fx.Invoke(func(*Bot) {}),
)

// ProvideBot builds the bot and hooks label reloads into the watcher.
func ProvideBot(
	lc fx.Lifecycle,
	cfg *config.Config,
	client *telegram.Client,
	store settings.Store,
	watcher *config.Watcher,
	log *logger.Logger,
) (*Bot, error) {
	tg := cfg.CurrentTelegram()
	b, err := New(client, store, cfg.CurrentLabels(), log.Named("bot"),
		WithHandlerTimeout(time.Duration(tg.TimeoutSeconds)*time.Second))
	if err != nil {
		return nil, err
	}

	watcher.AddHandler(func(newCfg *config.Config) error {
		client.SetAllowFrom(newCfg.CurrentTelegram().AllowFrom)
		return b.ApplyLabels(newCfg.CurrentLabels())
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if tg.SyncCommands {
				if err := b.SyncCommands(ctx); err != nil {
					log.Warn("Failed to sync Telegram slash commands", zap.Error(err))
				}
			}
			// The start context ends with OnStart; polling outlives it.
			b.Resume(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			b.Stop()
			return b.Wait(ctx)
		},
	})

	return b, nil
}
