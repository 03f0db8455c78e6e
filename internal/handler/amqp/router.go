package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/wangfenghuan/draw-backend/internal/adapter/pubsub"
	"github.com/wangfenghuan/draw-backend/internal/domain/registry"
)

const (
	// ------------------- EXCHANGES (SOURCES) -------------------
	RoomEventsExchange = "draw_room.events"

	// SyncEventsExchange carries this service's own outbound events
	// (snapshot.created etc.).
	SyncEventsExchange = "draw_sync.events"

	// ------------------- TOPICS (ROUTING KEYS) -----------------
	TopicRoomClosed = "draw_room.#.room.closed.v1"

	// ------------------- QUEUES (CONSUMERS) --------------------
	SyncProcessorQueue = "draw-sync.incoming-processor.v1"
	SyncPoisonTopic    = "draw-sync.incoming-processor.v1.poison"
)

// RoomEventHandler consumes management-plane room events off the platform
// bus and applies them to the local registry.
type RoomEventHandler struct {
	hub        registry.Hubber
	logger     *slog.Logger
	dispatcher pubsub.EventDispatcher
}

func NewRoomEventHandler(hub registry.Hubber, logger *slog.Logger, dispatcher pubsub.EventDispatcher) *RoomEventHandler {
	return &RoomEventHandler{hub, logger, dispatcher}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// [REGISTRATION_PIPELINE]
func (h *RoomEventHandler) RegisterHandlers(router *message.Router, subProvider *pubsub.SubscriberProvider) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), SyncPoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name     string
		exchange string
		topic    string
		handler  message.NoPublishHandlerFunc
	}{
		{"ON_ROOM_CLOSED", RoomEventsExchange, TopicRoomClosed, Bind(h, h.OnRoomClosedV1)},
	}

	for _, c := range configs {
		instanceID := uuid.NewString()[:8]
		// [UNIQUE_HANDLER_QUEUE]
		// Each handler on each node consumes from its own queue so every
		// node sees every room event.
		// Format: draw-sync.incoming-processor.v1.b23a8f12.ON_ROOM_CLOSED
		handlerQueue := fmt.Sprintf("%s.%s.%s", SyncProcessorQueue, instanceID, c.name)

		sub, err := subProvider.Build(handlerQueue, c.exchange, c.topic)
		if err != nil {
			return err
		}

		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "queue", SyncProcessorQueue)
	return nil
}
