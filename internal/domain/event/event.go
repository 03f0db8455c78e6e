package event

type EventKind int16

const (
	SnapshotCreated EventKind = iota + 1 // [PERSISTENCE]
	RoomCompacted                        // [PERSISTENCE]
	RoomClosed                           // [MANAGEMENT] inbound only
)

// Eventer defines the contract for domain events flowing to the platform bus.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetRoomID() string
	GetOccurredAt() int64
	GetPayload() any
}

// Exportable defines an event that should be published to the message bus.
type Exportable interface {
	// GetRoutingKey returns the topic for the event; an empty string tells
	// the dispatcher to skip publishing.
	GetRoutingKey() string
}
