package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"spindrift/pkg/bot"
	"spindrift/pkg/channels/telegram"
	"spindrift/pkg/config"
	"spindrift/pkg/logger"
	"spindrift/pkg/metrics"
	"spindrift/pkg/settings"
	"spindrift/pkg/version"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot in the foreground",
	Long: `Run the bot until interrupted.

Examples:
  # Use ~/.spindrift/config.json
  spindrift run

  # Use a specific config file
  spindrift run -c ./bot.yaml

  # Override the token from the environment
  SPINDRIFT_TELEGRAM_TOKEN=123:abc spindrift run`,
	RunE: runBot,
}

func newApp(extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Supply(config.Path(configPath)),
		config.Module,
		logger.Module,
		metrics.Module,
		settings.Module,
		telegram.Module,
		bot.Module,

		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger, b *bot.Bot) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.Info("Bot started",
						zap.String("version", version.GetVersion()),
						zap.Strings("commands", b.Commands()))
					log.Info("Press Ctrl+C to stop")
					return nil
				},
				OnStop: func(ctx context.Context) error {
					log.Info("Bot stopped")
					return nil
				},
			})
		}),

		fx.NopLogger, // Suppress fx logs
	}
	return fx.New(append(opts, extra...)...)
}

func runBot(cmd *cobra.Command, args []string) error {
	app := newApp()
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("starting bot: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	return app.Stop(stopCtx)
}
