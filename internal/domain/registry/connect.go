package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/HANDLERS)
// This allows mocking and decoupling from the concrete implementation.
type Connector interface {
	GetID() uuid.UUID
	GetRoomID() string
	Admission() model.Admission
	Send(frame []byte) bool // Thread-safe, never blocks: drop-newest on overflow
	Recv() <-chan []byte
	Done() <-chan struct{}
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// connect is the concrete implementation (unexported to force interface usage).
//
// Lifecycle: CONNECTING (admission pending, no connect object yet) →
// OPEN (registered) → CLOSED. Reconnection is always a fresh instance.
type connect struct {
	id        uuid.UUID
	roomID    string
	admission model.Admission
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	sendCh chan []byte
	doneCh chan struct{}

	closeOnce sync.Once

	// droppedCount tracks frames shed under backpressure. [ATOMIC_FIELD]
	droppedCount atomic.Uint64
}

// NewConnector creates a connection handle scoped to exactly one room, with
// the capability set resolved once at admission time.
func NewConnector(ctx context.Context, roomID string, adm model.Admission, bufferSize int) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        uuid.New(),
		roomID:    roomID,
		admission: adm,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan []byte, bufferSize),
		doneCh:    make(chan struct{}),
	}
}

func (c *connect) GetID() uuid.UUID          { return c.id }
func (c *connect) GetRoomID() string         { return c.roomID }
func (c *connect) Admission() model.Admission { return c.admission }

// Send attempts to push a frame into the outbound queue.
// The queue is a best-effort fast path, not the durability guarantee; when it
// is full the newest frame is dropped so producers are never blocked.
func (c *connect) Send(frame []byte) bool {
	select {
	case <-c.doneCh:
		return false
	default:
	}

	select {
	case c.sendCh <- frame:
		return true
	default:
		// [BACKPRESSURE] Saturated consumer: shed the newest frame.
		c.droppedCount.Add(1)
		return false
	}
}

func (c *connect) Recv() <-chan []byte { return c.sendCh }

// Done is closed when the connection is terminated; write pumps select on it
// instead of relying on a closed send channel.
func (c *connect) Done() <-chan struct{} { return c.doneCh }

func (c *connect) Dropped() uint64 { return c.droppedCount.Load() }

// Close terminates the session. Idempotent: may be called concurrently by the
// hub (eviction), the cell and the transport handler (defer).
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
		// The send channel is never closed; Done() is the termination
		// signal, which keeps concurrent Send calls panic-free.
		close(c.doneCh)
	})
}
