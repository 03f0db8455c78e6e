package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wangfenghuan/draw-backend/internal/adapter/blob"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
	"github.com/wangfenghuan/draw-backend/internal/domain/protocol"
	"github.com/wangfenghuan/draw-backend/internal/domain/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSyncFixture(t *testing.T) (*SyncService, *registry.Hub, *fakeBuffer, *fakeBus, *fakeStore, *blob.MemoryStore) {
	t.Helper()
	hub := registry.NewHub(registry.WithLogger(testLogger()))
	t.Cleanup(hub.Shutdown)

	buffer := newFakeBuffer()
	bus := &fakeBus{}
	store := &fakeStore{}
	blobs := blob.NewMemoryStore()
	svc := NewSyncService(hub, buffer, bus, store, blobs, testLogger(), 16)
	return svc, hub, buffer, bus, store, blobs
}

func recvFrame(t *testing.T, conn registry.Connector) []byte {
	t.Helper()
	select {
	case frame := <-conn.Recv():
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHandleFrame_EditPersistsAndFansOut(t *testing.T) {
	svc, _, buffer, bus, _, _ := newSyncFixture(t)
	ctx := context.Background()

	editor, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true, CanEdit: true})
	require.NoError(t, err)
	viewer, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)

	raw := protocol.Frame{Op: protocol.OpEdit, Payload: []byte("delta-bytes")}.Encode()
	require.NoError(t, svc.HandleFrame(ctx, editor, raw))

	// Durable enqueue holds the payload without the opcode byte.
	pending, err := buffer.Peek(ctx, "room-1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []byte("delta-bytes"), pending[0].Payload)
	assert.Equal(t, int64(1), pending[0].ID)

	// The other local connection receives the full frame.
	assert.Equal(t, raw, recvFrame(t, viewer))

	// Cross-node fanout carries the sender's connection id.
	require.Len(t, bus.published, 1)
	assert.Equal(t, "room-1", bus.published[0].roomID)
	assert.Equal(t, editor.GetID().String(), bus.published[0].senderID)
	assert.Equal(t, raw, bus.published[0].frame)
}

func TestHandleFrame_EditDoesNotEchoToSender(t *testing.T) {
	svc, _, _, _, _, _ := newSyncFixture(t)
	ctx := context.Background()

	editor, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true, CanEdit: true})
	require.NoError(t, err)

	raw := protocol.Frame{Op: protocol.OpEdit, Payload: []byte("x")}.Encode()
	require.NoError(t, svc.HandleFrame(ctx, editor, raw))

	select {
	case frame := <-editor.Recv():
		t.Fatalf("sender received its own frame: %q", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleFrame_EditWithoutCapabilityIsViolation(t *testing.T) {
	svc, _, buffer, bus, _, _ := newSyncFixture(t)
	ctx := context.Background()

	viewer, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)
	peer, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true, CanEdit: true})
	require.NoError(t, err)

	raw := protocol.Frame{Op: protocol.OpEdit, Payload: []byte("sneaky")}.Encode()
	err = svc.HandleFrame(ctx, viewer, raw)
	require.ErrorIs(t, err, ErrPolicyViolation)

	// The frame must not leak anywhere.
	assert.Zero(t, buffer.pendingLen("room-1"))
	assert.Empty(t, bus.published)
	select {
	case frame := <-peer.Recv():
		t.Fatalf("rejected frame was broadcast: %q", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleFrame_PresenceBroadcastsWithoutPersisting(t *testing.T) {
	svc, _, buffer, bus, _, _ := newSyncFixture(t)
	ctx := context.Background()

	// Presence needs no edit capability.
	sender, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)
	peer, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)

	raw := protocol.Frame{Op: protocol.OpPresence, Payload: []byte("cursor@3,4")}.Encode()
	require.NoError(t, svc.HandleFrame(ctx, sender, raw))

	assert.Equal(t, raw, recvFrame(t, peer))
	require.Len(t, bus.published, 1)
	assert.Zero(t, buffer.pendingLen("room-1"))
}

func TestHandleFrame_MalformedFrames(t *testing.T) {
	svc, _, _, _, _, _ := newSyncFixture(t)
	ctx := context.Background()

	conn, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true, CanEdit: true})
	require.NoError(t, err)

	err = svc.HandleFrame(ctx, conn, nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	err = svc.HandleFrame(ctx, conn, []byte{0xFF, 0x01})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestHandleFrame_SyncWithoutSnapshotSendsNothing(t *testing.T) {
	svc, _, _, _, _, _ := newSyncFixture(t)
	ctx := context.Background()

	conn, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)

	require.NoError(t, svc.HandleFrame(ctx, conn, []byte{byte(protocol.OpSync)}))

	select {
	case frame := <-conn.Recv():
		t.Fatalf("unexpected frame: %q", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleFrame_SyncSendsCurrentSnapshot(t *testing.T) {
	svc, _, _, _, store, blobs := newSyncFixture(t)
	ctx := context.Background()

	require.NoError(t, blobs.Put(ctx, "rooms/room-1/snapshots/snap.bin", []byte("doc-state")))
	require.NoError(t, store.InsertSnapshot(ctx, &model.Snapshot{
		RoomID:       "room-1",
		BlobKey:      "rooms/room-1/snapshots/snap.bin",
		LastMergedID: 42,
	}))

	conn, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)

	require.NoError(t, svc.HandleFrame(ctx, conn, []byte{byte(protocol.OpSync)}))

	frame := recvFrame(t, conn)
	require.NotEmpty(t, frame)
	assert.Equal(t, byte(protocol.OpSync), frame[0])
	assert.Equal(t, []byte("doc-state"), frame[1:])
}

func TestHandleFrame_EnqueueFailureStillFansOut(t *testing.T) {
	svc, _, buffer, bus, _, _ := newSyncFixture(t)
	ctx := context.Background()

	buffer.enqueueErr = assert.AnError

	editor, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true, CanEdit: true})
	require.NoError(t, err)
	peer, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)

	raw := protocol.Frame{Op: protocol.OpEdit, Payload: []byte("y")}.Encode()
	err = svc.HandleFrame(ctx, editor, raw)
	require.ErrorIs(t, err, assert.AnError)

	// Live delivery still happened even though durability failed.
	assert.Equal(t, raw, recvFrame(t, peer))
	require.Len(t, bus.published, 1)
}

func TestUnsubscribeDetachesConnection(t *testing.T) {
	svc, hub, _, _, _, _ := newSyncFixture(t)
	ctx := context.Background()

	conn, err := svc.Subscribe(ctx, "room-1", model.Admission{CanView: true})
	require.NoError(t, err)
	require.True(t, hub.IsLocal("room-1", conn.GetID()))

	svc.Unsubscribe("room-1", conn.GetID())

	require.Eventually(t, func() bool {
		return !hub.IsLocal("room-1", conn.GetID())
	}, 2*time.Second, 10*time.Millisecond)
}
