package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundtrip(t *testing.T) {
	s := NewFSStore(t.TempDir())
	ctx := context.Background()

	key := SnapshotKey("42")
	data := []byte{0x01, 0x02, 0x03}
	require.NoError(t, s.Put(ctx, key, data))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFSStoreMissingKey(t *testing.T) {
	s := NewFSStore(t.TempDir())
	_, err := s.Get(context.Background(), "rooms/7/snapshots/none.bin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotKeyShape(t *testing.T) {
	key := SnapshotKey("42")
	assert.True(t, strings.HasPrefix(key, "rooms/42/snapshots/"))
	assert.True(t, strings.HasSuffix(key, ".bin"))
	assert.NotEqual(t, key, SnapshotKey("42"), "keys must be unique")
}
