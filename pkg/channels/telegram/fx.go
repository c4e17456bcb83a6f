package telegram

import (
	"go.uber.org/fx"

	"spindrift/pkg/config"
	"spindrift/pkg/logger"
)

// Module provides the Telegram client.
var Module = fx.Module("telegram",
	fx.Provide(ProvideClient),
)

// ProvideClient dials Telegram with the configured token.
func ProvideClient(cfg *config.Config, log *logger.Logger) (*Client, error) {
	return Dial(cfg.CurrentTelegram(), log.Named("telegram"))
}
