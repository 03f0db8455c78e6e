package service

import (
	"context"
	"time"

	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

// Ports consumed by the sync core. Concrete adapters live under
// internal/adapter and are bound here via fx.

// UpdateBuffer is the per-room durable FIFO of un-persisted deltas.
type UpdateBuffer interface {
	Enqueue(ctx context.Context, roomID string, payload []byte) (int64, error)
	Peek(ctx context.Context, roomID string, n int64) ([]model.Delta, error)
	Trim(ctx context.Context, roomID string, n int64) error
	ScanRooms(ctx context.Context, fn func(roomID string) error) error
}

// FanoutBus propagates a frame to every other node serving the room.
type FanoutBus interface {
	Publish(ctx context.Context, roomID, senderID string, frame []byte) error
}

// DeltaStore is long-term storage for deltas and snapshots.
type DeltaStore interface {
	InsertDeltas(ctx context.Context, deltas []model.Delta) error
	CountUnmergedDeltas(ctx context.Context, roomID string, afterID int64) (int64, error)
	ListDeltasAfter(ctx context.Context, roomID string, afterID int64, limit int32) ([]model.Delta, error)
	DeleteDeltasThrough(ctx context.Context, roomID string, afterID, throughID int64) error
	CurrentSnapshot(ctx context.Context, roomID string) (*model.Snapshot, error)
	InsertSnapshot(ctx context.Context, snap *model.Snapshot) error
}

// Locker is the advisory TTL-lease lock service. Acquisition is always
// non-blocking; contention means "someone else is already doing this work".
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// MergeOracle is the external CRDT merge algorithm behind a byte-in/byte-out
// contract. A nil base means "empty document".
type MergeOracle interface {
	Merge(ctx context.Context, roomID string, base []byte, deltas [][]byte) ([]byte, error)
}

// Compactor folds accumulated deltas into a new snapshot.
type Compactor interface {
	Compact(ctx context.Context, roomID string) error
}

// Admitter is the external capability check consulted once per connection.
type Admitter interface {
	Check(ctx context.Context, principal, roomID string) (model.Admission, error)
}
