package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

var (
	_ Eventer    = (*SnapshotCreatedV1Event)(nil)
	_ Exportable = (*SnapshotCreatedV1Event)(nil)
)

// SnapshotCreatedV1Event announces that compaction produced a new snapshot
// for a room. Other platform services (history, exports) subscribe to it;
// the sync core itself never consumes it.
type SnapshotCreatedV1Event struct {
	ID         string          `json:"id"`
	Snapshot   *model.Snapshot `json:"snapshot"`
	MergedFrom int64           `json:"merged_from"`
	OccurredAt int64           `json:"occurred_at"`
}

func NewSnapshotCreatedV1Event(snap *model.Snapshot, mergedFrom int64) *SnapshotCreatedV1Event {
	return &SnapshotCreatedV1Event{
		ID:         uuid.NewString(),
		Snapshot:   snap,
		MergedFrom: mergedFrom,
		OccurredAt: time.Now().UnixMilli(),
	}
}

func (e *SnapshotCreatedV1Event) GetID() string         { return e.ID }
func (e *SnapshotCreatedV1Event) GetKind() EventKind    { return SnapshotCreated }
func (e *SnapshotCreatedV1Event) GetRoomID() string     { return e.Snapshot.RoomID }
func (e *SnapshotCreatedV1Event) GetOccurredAt() int64  { return e.OccurredAt }
func (e *SnapshotCreatedV1Event) GetPayload() any       { return e.Snapshot }

// GetRoutingKey generates the broker routing topic.
// [PATTERN] draw_sync.{room_id}.snapshot.created.v1
func (e *SnapshotCreatedV1Event) GetRoutingKey() string {
	return fmt.Sprintf("draw_sync.%s.snapshot.created.v1", e.Snapshot.RoomID)
}
