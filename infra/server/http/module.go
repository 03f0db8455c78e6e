package http

import (
	"context"
	"log/slog"
	"net/http"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"http-server",

	fx.Provide(
		NewMux,
		NewServer,
	),

	fx.Invoke(func(lc fx.Lifecycle, srv *http.Server, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				Start(srv, logger)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return Stop(ctx, srv)
			},
		})
	}),
)
