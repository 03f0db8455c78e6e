package model

// Admission is the capability set resolved once when a client connects.
// Lacking CanView rejects the connection before any state is exchanged.
type Admission struct {
	CanView bool
	CanEdit bool
}
