package ws

import (
	"log/slog"

	"github.com/wangfenghuan/draw-backend/config"
	"github.com/wangfenghuan/draw-backend/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"handler_ws",

	fx.Provide(
		func(logger *slog.Logger, syncer service.Syncer, admitter service.Admitter, cfg *config.Config) *WSHandler {
			return NewWSHandler(logger, syncer, admitter, cfg.Sync.MaxViolations)
		},
	),
)
