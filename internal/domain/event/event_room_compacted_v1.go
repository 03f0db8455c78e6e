package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	_ Eventer    = (*RoomCompactedV1Event)(nil)
	_ Exportable = (*RoomCompactedV1Event)(nil)
)

// RoomCompactedV1Event reports one finished compaction pass: how many deltas
// were folded and where the merged range now ends.
type RoomCompactedV1Event struct {
	ID           string `json:"id"`
	RoomID       string `json:"room_id"`
	Merged       int    `json:"merged"`
	LastMergedID int64  `json:"last_merged_id"`
	OccurredAt   int64  `json:"occurred_at"`
}

func NewRoomCompactedV1Event(roomID string, merged int, lastMergedID int64) *RoomCompactedV1Event {
	return &RoomCompactedV1Event{
		ID:           uuid.NewString(),
		RoomID:       roomID,
		Merged:       merged,
		LastMergedID: lastMergedID,
		OccurredAt:   time.Now().UnixMilli(),
	}
}

func (e *RoomCompactedV1Event) GetID() string        { return e.ID }
func (e *RoomCompactedV1Event) GetKind() EventKind   { return RoomCompacted }
func (e *RoomCompactedV1Event) GetRoomID() string    { return e.RoomID }
func (e *RoomCompactedV1Event) GetOccurredAt() int64 { return e.OccurredAt }
func (e *RoomCompactedV1Event) GetPayload() any      { return e }

// [PATTERN] draw_sync.{room_id}.room.compacted.v1
func (e *RoomCompactedV1Event) GetRoutingKey() string {
	return fmt.Sprintf("draw_sync.%s.room.compacted.v1", e.RoomID)
}
