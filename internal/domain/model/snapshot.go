package model

import "time"

// Snapshot is the last fully-merged state of a room's document.
// LastMergedID is the identifier of the last delta it incorporates and is
// non-decreasing across a room's snapshot history. Snapshots are never
// mutated, only superseded.
type Snapshot struct {
	ID           int64
	RoomID       string
	BlobKey      string
	LastMergedID int64
	CreatedAt    time.Time
}
