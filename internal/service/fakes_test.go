package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/wangfenghuan/draw-backend/internal/domain/event"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

var errInsertRejected = errors.New("insert rejected")

// In-memory fakes for the service ports. They mirror the real adapters'
// observable behavior (FIFO order, peek-without-remove, idempotent inserts)
// so the services under test exercise the same contracts.

type fakeBuffer struct {
	mu     sync.Mutex
	nextID map[string]int64
	rooms  map[string][]model.Delta

	enqueueErr error
}

func newFakeBuffer() *fakeBuffer {
	return &fakeBuffer{
		nextID: make(map[string]int64),
		rooms:  make(map[string][]model.Delta),
	}
}

func (b *fakeBuffer) Enqueue(_ context.Context, roomID string, payload []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enqueueErr != nil {
		return 0, b.enqueueErr
	}
	b.nextID[roomID]++
	id := b.nextID[roomID]
	b.rooms[roomID] = append(b.rooms[roomID], model.Delta{ID: id, RoomID: roomID, Payload: payload})
	return id, nil
}

func (b *fakeBuffer) Peek(_ context.Context, roomID string, n int64) ([]model.Delta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.rooms[roomID]
	if int64(len(pending)) < n {
		n = int64(len(pending))
	}
	out := make([]model.Delta, n)
	copy(out, pending[:n])
	return out, nil
}

func (b *fakeBuffer) Trim(_ context.Context, roomID string, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.rooms[roomID]
	if int64(len(pending)) < n {
		n = int64(len(pending))
	}
	b.rooms[roomID] = pending[n:]
	return nil
}

func (b *fakeBuffer) ScanRooms(_ context.Context, fn func(roomID string) error) error {
	b.mu.Lock()
	rooms := make([]string, 0, len(b.rooms))
	for room, pending := range b.rooms {
		if len(pending) > 0 {
			rooms = append(rooms, room)
		}
	}
	b.mu.Unlock()
	sort.Strings(rooms)
	for _, room := range rooms {
		if err := fn(room); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBuffer) pendingLen(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[roomID])
}

type published struct {
	roomID   string
	senderID string
	frame    []byte
}

type fakeBus struct {
	mu         sync.Mutex
	published  []published
	publishErr error
}

func (f *fakeBus) Publish(_ context.Context, roomID, senderID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{roomID: roomID, senderID: senderID, frame: frame})
	return nil
}

type fakeStore struct {
	mu     sync.Mutex
	deltas []model.Delta
	snaps  []model.Snapshot

	insertErr       error
	failRooms       map[string]bool
	snapshotErr     error
	deleteErr       error
	insertSnapErr   error
	nextSnapshotID  int64
	insertedBatches int
}

func (s *fakeStore) InsertDeltas(_ context.Context, deltas []model.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, d := range deltas {
		if s.failRooms[d.RoomID] {
			return errInsertRejected
		}
	}
	s.insertedBatches++
	for _, d := range deltas {
		dup := false
		for _, existing := range s.deltas {
			if existing.RoomID == d.RoomID && existing.ID == d.ID {
				dup = true
				break
			}
		}
		if !dup {
			s.deltas = append(s.deltas, d)
		}
	}
	return nil
}

func (s *fakeStore) CountUnmergedDeltas(_ context.Context, roomID string, afterID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.deltas {
		if d.RoomID == roomID && d.ID > afterID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListDeltasAfter(_ context.Context, roomID string, afterID int64, limit int32) ([]model.Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Delta
	for _, d := range s.deltas {
		if d.RoomID == roomID && d.ID > afterID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) DeleteDeltasThrough(_ context.Context, roomID string, afterID, throughID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	kept := s.deltas[:0]
	for _, d := range s.deltas {
		if d.RoomID == roomID && d.ID > afterID && d.ID <= throughID {
			continue
		}
		kept = append(kept, d)
	}
	s.deltas = kept
	return nil
}

func (s *fakeStore) CurrentSnapshot(_ context.Context, roomID string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	var latest *model.Snapshot
	for i := range s.snaps {
		snap := &s.snaps[i]
		if snap.RoomID != roomID {
			continue
		}
		if latest == nil || snap.LastMergedID > latest.LastMergedID {
			latest = snap
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *fakeStore) InsertSnapshot(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertSnapErr != nil {
		return s.insertSnapErr
	}
	s.nextSnapshotID++
	snap.ID = s.nextSnapshotID
	snap.CreatedAt = time.Now()
	s.snaps = append(s.snaps, *snap)
	return nil
}

func (s *fakeStore) deltaCount(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, d := range s.deltas {
		if d.RoomID == roomID {
			n++
		}
	}
	return n
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	busy map[string]bool

	acquireErr error
	acquired   []string
	released   []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{
		held: make(map[string]bool),
		busy: make(map[string]bool),
	}
}

func (l *fakeLocker) TryAcquire(_ context.Context, name string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.busy[name] || l.held[name] {
		return false, nil
	}
	l.held[name] = true
	l.acquired = append(l.acquired, name)
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	l.released = append(l.released, name)
	return nil
}

type mergeCall struct {
	roomID string
	base   []byte
	deltas [][]byte
}

type fakeOracle struct {
	mu       sync.Mutex
	calls    []mergeCall
	result   []byte
	mergeErr error
}

func (o *fakeOracle) Merge(_ context.Context, roomID string, base []byte, deltas [][]byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, mergeCall{roomID: roomID, base: base, deltas: deltas})
	if o.mergeErr != nil {
		return nil, o.mergeErr
	}
	return o.result, nil
}

type fakeCompactor struct {
	mu    sync.Mutex
	rooms []string
	done  chan struct{}
}

func newFakeCompactor() *fakeCompactor {
	return &fakeCompactor{done: make(chan struct{}, 16)}
}

func (c *fakeCompactor) Compact(_ context.Context, roomID string) error {
	c.mu.Lock()
	c.rooms = append(c.rooms, roomID)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func (c *fakeCompactor) compacted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rooms...)
}

type fakeAdmitter struct {
	mu    sync.Mutex
	calls int
	adm   model.Admission
	err   error
}

func (a *fakeAdmitter) Check(_ context.Context, _, _ string) (model.Admission, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.adm, a.err
}

func (a *fakeAdmitter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []event.Eventer
}

func (d *fakeDispatcher) Publish(_ context.Context, ev event.Eventer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

func (d *fakeDispatcher) Publisher() message.Publisher { return nil }
