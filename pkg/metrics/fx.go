package metrics

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"spindrift/pkg/config"
	"spindrift/pkg/logger"
)

// Module starts the metrics listener when metrics are enabled.
var Module = fx.Module("metrics",
	fx.Invoke(startServer),
)

// startServer binds in OnStart so a failed app build never holds the port.
func startServer(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	addr := cfg.Metrics.Listen

	var srv *Server
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s, err := Listen(addr)
			if err != nil {
				return err
			}
			srv = s
			log.Info("Metrics listener started", zap.String("addr", srv.Addr()))
			go func() {
				if err := srv.Serve(); err != nil {
					log.Error("Metrics listener failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if srv == nil {
				return nil
			}
			return srv.Shutdown(ctx)
		},
	})
}
