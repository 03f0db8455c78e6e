package dto

// RoomClosedV1 is the management plane's announcement that a room was shut
// down; every node evicts the room's local connections on receipt.
type RoomClosedV1 struct {
	RoomID   string `json:"room_id"`
	Reason   string `json:"reason,omitempty"`
	ClosedAt int64  `json:"closed_at"`
}
