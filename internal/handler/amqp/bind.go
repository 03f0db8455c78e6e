package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/wangfenghuan/draw-backend/internal/domain/event"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, roomID string, payload *T) (event.Eventer, error)

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to domain logic, handling Panic Recovery, Locality
// and re-publication of produced events.
func Bind[T any](h *RoomEventHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
			}
		}()

		// [IDENTIFICATION]
		// The room id rides in the routing key: draw_room.<room>.room.closed.v1
		roomID, ok := resolveRoomID(msg)
		if !ok {
			h.logger.Warn("ROUTING_FAILED: room_missing", "msg_id", msg.UUID)
			return nil // ACK: Invalid routing is a terminal state.
		}

		// [LOCALITY_FILTER]
		// Process only when the room has connections on THIS node.
		if !h.hub.HasRoom(roomID) {
			return nil // ACK: Nothing to do here.
		}

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		// [EXECUTION]
		ev, err := fn(msg.Context(), roomID, payload)
		if err != nil {
			return err // NACK: Business failure triggers Retry policy.
		}

		if ev == nil {
			return nil
		}

		// [GLOBAL_DISPATCH] Re-publish any produced event for other services.
		if _, ok := ev.(event.Exportable); ok {
			if err := h.dispatcher.Publish(msg.Context(), ev); err != nil {
				return fmt.Errorf("GLOBAL_DISPATCH_FAILED: %w", err)
			}
		}

		return nil
	}
}

func resolveRoomID(msg *message.Message) (string, bool) {
	rk := msg.Metadata.Get("x-routing-key")
	if rk == "" {
		rk = msg.Metadata.Get("routing_key")
	}

	parts := strings.Split(rk, ".")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
