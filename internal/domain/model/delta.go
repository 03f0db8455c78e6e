package model

// Delta is one opaque binary CRDT mutation for a room's document.
// IDs are assigned by the durable update buffer and are strictly
// increasing in enqueue order within a room.
type Delta struct {
	ID      int64
	RoomID  string
	Payload []byte
}
