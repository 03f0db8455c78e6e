// Package blob defines the get/put-by-key contract the sync core consumes
// from object storage, plus filesystem and in-memory implementations.
// Snapshot keys follow rooms/<roomId>/snapshots/<timestamp>_<random>.bin.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("blob: not found")

// Store is the minimal object storage surface the core needs.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// SnapshotKey builds a fresh, unique key for a room snapshot.
func SnapshotKey(roomID string) string {
	return fmt.Sprintf("rooms/%s/snapshots/%d_%s.bin", roomID, time.Now().Unix(), ulid.Make())
}
