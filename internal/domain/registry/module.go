package registry

import (
	"context"
	"log/slog"

	"github.com/wangfenghuan/draw-backend/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *Hub {
			return NewHub(
				WithMailboxSize(cfg.Sync.MailboxSize),
				WithLogger(logger),
			)
		},
		func(h *Hub) Hubber { return h },
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown() // [GRACEFUL_SHUTDOWN] Stop all room actors
				return nil
			},
		})
	}),
)
