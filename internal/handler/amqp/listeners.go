package amqp

import (
	"context"

	"github.com/wangfenghuan/draw-backend/internal/domain/event"
	"github.com/wangfenghuan/draw-backend/internal/service/dto"
)

// [ON_ROOM_CLOSED]
// The management plane closed the room: force-disconnect every local client.
// Reconnect attempts then fail admission upstream.
func (h *RoomEventHandler) OnRoomClosedV1(ctx context.Context, roomID string, raw *dto.RoomClosedV1) (event.Eventer, error) {
	h.hub.EvictRoom(roomID)
	h.logger.Info("ROOM_CLOSED_APPLIED", "room_id", roomID, "reason", raw.Reason)
	return nil, nil
}
