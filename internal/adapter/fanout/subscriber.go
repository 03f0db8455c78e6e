package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wangfenghuan/draw-backend/internal/domain/protocol"
	"github.com/wangfenghuan/draw-backend/internal/domain/registry"
)

// Subscriber listens on the wildcard room-channel pattern and dispatches
// remote frames into the local registry.
type Subscriber struct {
	rdb    redis.UniversalClient
	hub    registry.Hubber
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSubscriber(rdb redis.UniversalClient, hub registry.Hubber, logger *slog.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, hub: hub, logger: logger}
}

// Start opens a single pattern subscription covering all room channels and
// pumps messages until Stop is called.
func (s *Subscriber) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	pubsub := s.rdb.PSubscribe(ctx, protocol.RoomChannelPattern())
	// Force the subscription to be established before we report ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		return err
	}

	ch := pubsub.Channel()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.dispatch(msg.Channel, []byte(msg.Payload))
			}
		}
	}()

	s.logger.Info("FANOUT_SUBSCRIBED", "pattern", protocol.RoomChannelPattern())
	return nil
}

func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// dispatch routes one bus message to local connections of the matching room.
//
// Duplicate-delivery protection works purely on sender identifiers carried in
// the envelope: if the sender connection is local, this node originated the
// message and already delivered it in the accept path, so the whole delivery
// is skipped; otherwise every local connection except a same-id one receives
// the frame.
func (s *Subscriber) dispatch(channel string, payload []byte) {
	roomID, ok := protocol.RoomFromChannel(channel)
	if !ok {
		s.logger.Warn("FANOUT_BAD_CHANNEL", "channel", channel)
		return
	}

	senderID, frame, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		s.logger.Warn("FANOUT_BAD_ENVELOPE", "room_id", roomID, "err", err)
		return
	}

	sender, err := uuid.Parse(senderID)
	if err != nil {
		// Unknown sender format still excludes nothing locally.
		sender = uuid.Nil
	}

	if sender != uuid.Nil && s.hub.IsLocal(roomID, sender) {
		// This node published the message; local delivery already happened.
		return
	}

	s.hub.Broadcast(roomID, frame, sender)
}
