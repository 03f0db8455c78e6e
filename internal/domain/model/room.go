package model

// Room is a collaboration session. The sync core only ever reads rooms;
// creation, mutation and deletion happen in the management plane.
type Room struct {
	ID           string
	OwnerID      string
	Closed       bool
	AccessSecret string
}
