package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/wangfenghuan/draw-backend/internal/domain/event"
)

// EventDispatcher defines the high-level contract for outgoing events.
// This allows services to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Eventer) error
	Publisher() message.Publisher
}

// eventDispatcher is the concrete implementation (private).
type eventDispatcher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewEventDispatcher returns the interface instead of the pointer to the struct.
func NewEventDispatcher(pub message.Publisher, logger *slog.Logger) EventDispatcher {
	return &eventDispatcher{
		publisher: pub,
		logger:    logger,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	exp, ok := ev.(event.Exportable)
	if !ok || exp.GetRoutingKey() == "" {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	d.logger.Debug("EVENT_PUBLISHED", "topic", exp.GetRoutingKey(), "event_id", ev.GetID())
	if err := d.publisher.Publish(exp.GetRoutingKey(), msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", exp.GetRoutingKey(), err)
	}

	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
