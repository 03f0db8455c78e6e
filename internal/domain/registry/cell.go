/*
Package registry tracks the live connections of every room served by this
node, based on the Actor Model.

Key Architectural Concepts:
  - Virtual Cells: every active room is represented by an isolated 'Cell'
    (Actor) that encapsulates the room's local connections.
  - Decoupling & Backpressure: per-room mailboxes ensure that slow network
    consumers do not block global system throughput.
  - Concurrency Management: lock-free lookups via sync.Map and fine-grained
    locking within individual cells eliminate global mutex contention.

Connections are owned exclusively by the node that accepted them; cross-node
visibility is the fanout bus's job, never the registry's.
*/
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// broadcast is one routed frame plus the connection to skip (the sender).
type broadcast struct {
	frame   []byte
	exclude uuid.UUID
}

// Celler defines the internal API for room-specific delivery units.
type Celler interface {
	Push(b broadcast) bool
	Attach(conn Connector)
	Detach(connID uuid.UUID) bool
	Has(connID uuid.UUID) bool
	EvictAll()
	Stop()
}

// Cell implements [ISOLATED_DELIVERY] logic for a single room.
type Cell struct {
	roomID string

	// [MAILBOX]
	// Buffered channel that decouples frame producers (websocket readers,
	// the fanout subscriber) from individual delivery. Acts as a shock
	// absorber so slow-consumer latency never propagates back to them.
	mailbox chan broadcast

	// [SESSIONS]
	// All live local connections of the room, keyed by connection id.
	sessions map[uuid.UUID]Connector

	mu sync.RWMutex

	// [LIFECYCLE_CONTROL]
	// Terminates the delivery goroutine; no leaks after the room empties.
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewCell(roomID string, mailboxSize int) *Cell {
	c := &Cell{
		roomID:   roomID,
		mailbox:  make(chan broadcast, mailboxSize),
		sessions: make(map[uuid.UUID]Connector),
		doneCh:   make(chan struct{}),
	}
	go c.loop()
	return c
}

// Push enqueues a frame for delivery. Returns false when the mailbox is
// saturated; the newest frame is dropped rather than blocking the producer.
func (c *Cell) Push(b broadcast) bool {
	select {
	case c.mailbox <- b:
		return true
	default:
		return false
	}
}

func (c *Cell) Attach(conn Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[conn.GetID()] = conn
}

// Detach removes a connection and reports whether the room is now empty.
func (c *Cell) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, connID)
	return len(c.sessions) == 0
}

func (c *Cell) Has(connID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[connID]
	return ok
}

// EvictAll closes every connection in the room.
func (c *Cell) EvictAll() {
	c.mu.Lock()
	conns := make([]Connector, 0, len(c.sessions))
	for _, conn := range c.sessions {
		conns = append(conns, conn)
	}
	c.sessions = make(map[uuid.UUID]Connector)
	c.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case b := <-c.mailbox:
			c.deliver(b)
		}
	}
}

func (c *Cell) deliver(b broadcast) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, conn := range c.sessions {
		if id == b.exclude {
			continue
		}
		conn.Send(b.frame)
	}
}

func (c *Cell) Stop() {
	c.stopOnce.Do(func() {
		close(c.doneCh)
	})
}
