package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	pubsubadapter "github.com/wangfenghuan/draw-backend/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		pubsubadapter.NewPublisherProvider,
		pubsubadapter.NewSubscriberProvider,

		NewRoomEventHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(h *RoomEventHandler, router *message.Router, subProvider *pubsubadapter.SubscriberProvider) error {
		return h.RegisterHandlers(router, subProvider)
	}),

	// The router owns the consumer connections; it starts with the app and
	// drains on shutdown.
	fx.Invoke(func(lc fx.Lifecycle, router *message.Router) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					_ = router.Run(context.Background())
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return router.Close()
			},
		})
	}),
)
