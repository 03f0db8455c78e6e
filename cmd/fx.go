package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/wangfenghuan/draw-backend/config"
	httpsrv "github.com/wangfenghuan/draw-backend/infra/server/http"
	infrapostgres "github.com/wangfenghuan/draw-backend/infra/postgres"
	infrapubsub "github.com/wangfenghuan/draw-backend/infra/pubsub"
	infraredis "github.com/wangfenghuan/draw-backend/infra/redis"
	"github.com/wangfenghuan/draw-backend/internal/adapter/blob"
	"github.com/wangfenghuan/draw-backend/internal/adapter/dlock"
	"github.com/wangfenghuan/draw-backend/internal/adapter/fanout"
	"github.com/wangfenghuan/draw-backend/internal/adapter/merge"
	pubsubadapter "github.com/wangfenghuan/draw-backend/internal/adapter/pubsub"
	"github.com/wangfenghuan/draw-backend/internal/adapter/storage"
	"github.com/wangfenghuan/draw-backend/internal/adapter/updatebuf"
	"github.com/wangfenghuan/draw-backend/internal/domain/registry"
	amqphandler "github.com/wangfenghuan/draw-backend/internal/handler/amqp"
	wshandler "github.com/wangfenghuan/draw-backend/internal/handler/ws"
	"github.com/wangfenghuan/draw-backend/internal/service"
	"go.uber.org/fx"
)

func ProvideLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(
		"service", ServiceName,
		"version", version,
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

// ProvideDispatcher binds the outbound event dispatcher to this service's own
// topic exchange on the platform broker.
func ProvideDispatcher(pp *pubsubadapter.PublisherProvider, logger *slog.Logger) (pubsubadapter.EventDispatcher, error) {
	pub, err := pp.Build(amqphandler.SyncEventsExchange)
	if err != nil {
		return nil, err
	}
	return pubsubadapter.NewEventDispatcher(pub, logger), nil
}

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			infrapubsub.NewProvider,
			ProvideDispatcher,
		),

		// Adapters behind the service ports.
		fx.Provide(
			fx.Annotate(updatebuf.NewRedisBuffer, fx.As(new(service.UpdateBuffer))),
			fx.Annotate(fanout.NewBus, fx.As(new(service.FanoutBus))),
			fx.Annotate(storage.NewPostgresStore, fx.As(new(service.DeltaStore))),
			fx.Annotate(dlock.NewRedisLock, fx.As(new(service.Locker))),
			fx.Annotate(
				func(cfg *config.Config) *merge.HTTPOracle {
					return merge.NewHTTPOracle(cfg.Compact.OracleURL, cfg.Compact.OracleTimeout)
				},
				fx.As(new(service.MergeOracle)),
			),
			fx.Annotate(
				func(cfg *config.Config) *blob.FSStore {
					return blob.NewFSStore(cfg.Blob.Dir)
				},
				fx.As(new(blob.Store)),
			),
			fanout.NewSubscriber,
		),

		// [DECORATION_LAYER] Intercept Admitter to add cross-cutting concerns.
		// Root-scoped so every consumer sees the cached variant.
		fx.Decorate(func(orig service.Admitter, logger *slog.Logger, cfg *config.Config) service.Admitter {
			return service.NewCachingAdmitter(orig, cfg.Admission.CacheSize, cfg.Admission.CacheTTL, logger)
		}),

		// The fanout subscriber must be attached before traffic flows.
		fx.Invoke(func(lc fx.Lifecycle, sub *fanout.Subscriber) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return sub.Start()
				},
				OnStop: func(ctx context.Context) error {
					sub.Stop()
					return nil
				},
			})
		}),

		infraredis.Module,
		infrapostgres.Module,
		registry.Module,
		service.Module,
		wshandler.Module,
		httpsrv.Module,
		amqphandler.Module,
	)
}
