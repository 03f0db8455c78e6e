// Package fanout propagates frames between nodes over Redis pub/sub so that
// an edit accepted on one process reaches clients connected elsewhere. No
// component ever needs a global view of all connections — only the local
// registry plus this bus.
package fanout

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wangfenghuan/draw-backend/internal/domain/protocol"
)

// Bus publishes sender-tagged frames onto a room's channel.
type Bus struct {
	rdb redis.UniversalClient
}

func NewBus(rdb redis.UniversalClient) *Bus {
	return &Bus{rdb: rdb}
}

// Publish wraps the frame in a fanout envelope and broadcasts it to every
// subscribed node. Delivery to remote clients is best-effort; durability is
// the update buffer's job, not the bus's.
func (b *Bus) Publish(ctx context.Context, roomID, senderID string, frame []byte) error {
	env, err := protocol.EncodeEnvelope(senderID, frame)
	if err != nil {
		return fmt.Errorf("fanout: encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, protocol.RoomChannel(roomID), env).Err(); err != nil {
		return fmt.Errorf("fanout: publish room %s: %w", roomID, err)
	}
	return nil
}
