package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/wangfenghuan/draw-backend/internal/adapter/blob"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
	"github.com/wangfenghuan/draw-backend/internal/domain/protocol"
	"github.com/wangfenghuan/draw-backend/internal/domain/registry"
)

var (
	// ErrPolicyViolation marks frames a connection was not allowed to send;
	// transports close the connection on it.
	ErrPolicyViolation = errors.New("service: policy violation")
	// ErrMalformedFrame marks undecodable frames; repeated occurrences
	// escalate to a policy close.
	ErrMalformedFrame = errors.New("service: malformed frame")
)

// [SYNC_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS
type Syncer interface {
	Subscribe(ctx context.Context, roomID string, adm model.Admission) (registry.Connector, error)
	Unsubscribe(roomID string, connID uuid.UUID)
	HandleFrame(ctx context.Context, conn registry.Connector, raw []byte) error
}

// SyncService drives the accept path of the pipeline: decode, capability
// check, durable enqueue, local broadcast, cross-node fanout.
type SyncService struct {
	hub    registry.Hubber
	buffer UpdateBuffer
	bus    FanoutBus
	store  DeltaStore
	blobs  blob.Store
	logger *slog.Logger

	sendBufferSize int
}

func NewSyncService(
	hub registry.Hubber,
	buffer UpdateBuffer,
	bus FanoutBus,
	store DeltaStore,
	blobs blob.Store,
	logger *slog.Logger,
	sendBufferSize int,
) *SyncService {
	return &SyncService{
		hub:            hub,
		buffer:         buffer,
		bus:            bus,
		store:          store,
		blobs:          blobs,
		logger:         logger,
		sendBufferSize: sendBufferSize,
	}
}

// Subscribe creates a connection handle and attaches it to the local
// registry. Admission must already have granted CanView.
func (s *SyncService) Subscribe(ctx context.Context, roomID string, adm model.Admission) (registry.Connector, error) {
	conn := registry.NewConnector(ctx, roomID, adm, s.sendBufferSize)
	s.hub.Register(conn)
	return conn, nil
}

func (s *SyncService) Unsubscribe(roomID string, connID uuid.UUID) {
	s.hub.Unregister(roomID, connID)
}

// HandleFrame processes one inbound client frame.
func (s *SyncService) HandleFrame(ctx context.Context, conn registry.Connector, raw []byte) error {
	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch frame.Op {
	case protocol.OpSync:
		return s.handleSync(ctx, conn)
	case protocol.OpPresence:
		// Ephemeral: broadcast only, never persisted.
		s.hub.Broadcast(conn.GetRoomID(), raw, conn.GetID())
		s.publish(ctx, conn, raw)
		return nil
	case protocol.OpEdit:
		return s.handleEdit(ctx, conn, raw)
	}
	return fmt.Errorf("%w: opcode %#x", ErrMalformedFrame, frame.Op)
}

// handleSync answers a late joiner with the room's current snapshot bytes,
// or nothing when the room has never been compacted.
func (s *SyncService) handleSync(ctx context.Context, conn registry.Connector) error {
	roomID := conn.GetRoomID()

	snap, err := s.store.CurrentSnapshot(ctx, roomID)
	if err != nil {
		return fmt.Errorf("sync: snapshot lookup room %s: %w", roomID, err)
	}
	if snap == nil {
		return nil
	}

	data, err := s.blobs.Get(ctx, snap.BlobKey)
	if err != nil {
		return fmt.Errorf("sync: snapshot blob room %s: %w", roomID, err)
	}

	conn.Send(protocol.Frame{Op: protocol.OpSync, Payload: data}.Encode())
	return nil
}

// handleEdit persists and fans out one delta. An edit from a view-only
// connection is never merged into shared state — it is a policy violation.
func (s *SyncService) handleEdit(ctx context.Context, conn registry.Connector, raw []byte) error {
	if !conn.Admission().CanEdit {
		return fmt.Errorf("%w: edit without can-edit capability", ErrPolicyViolation)
	}

	roomID := conn.GetRoomID()

	// (1) Durable enqueue. A failure here is propagated, not swallowed:
	// the edit still reaches live peers below, but the durability loss is
	// the caller's to track.
	id, enqueueErr := s.buffer.Enqueue(ctx, roomID, raw[1:])
	if enqueueErr != nil {
		s.logger.Error("EDIT_ENQUEUE_FAILED", "room_id", roomID, "err", enqueueErr)
	} else {
		s.logger.Debug("EDIT_ENQUEUED", "room_id", roomID, "delta_id", id)
	}

	// (2) Local broadcast to every other connection of the room.
	s.hub.Broadcast(roomID, raw, conn.GetID())

	// (3) Cross-node fanout with the sender id in the envelope.
	s.publish(ctx, conn, raw)

	return enqueueErr
}

func (s *SyncService) publish(ctx context.Context, conn registry.Connector, raw []byte) {
	if err := s.bus.Publish(ctx, conn.GetRoomID(), conn.GetID().String(), raw); err != nil {
		// Live fanout is best-effort; the durable buffer carries the data.
		s.logger.Warn("FANOUT_PUBLISH_FAILED", "room_id", conn.GetRoomID(), "err", err)
	}
}
