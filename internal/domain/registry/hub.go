package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hubber defines the gateway for room session management and frame routing.
type Hubber interface {
	Broadcast(roomID string, frame []byte, exclude uuid.UUID) bool
	Register(conn Connector)
	Unregister(roomID string, connID uuid.UUID)
	HasRoom(roomID string) bool
	IsLocal(roomID string, connID uuid.UUID) bool
	EvictRoom(roomID string)
	Shutdown()
}

// Hub implements a [SCALABLE_REGISTRY] of rooms using the Virtual Cell pattern.
// Each active room on this node is an isolated actor that owns the set of
// local connections; the hub itself holds no global lock.
type Hub struct {
	// cells stores Map[string]Celler. Optimized for [READ_HEAVY] workloads.
	cells  sync.Map
	config hubConfig
	logger *slog.Logger
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: defaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) HasRoom(roomID string) bool {
	_, ok := h.cells.Load(roomID)
	return ok
}

// IsLocal reports whether the given connection lives on this node. The fanout
// subscriber uses it to drop bus deliveries the node itself originated.
func (h *Hub) IsLocal(roomID string, connID uuid.UUID) bool {
	if val, ok := h.cells.Load(roomID); ok {
		if cell, ok := val.(Celler); ok {
			return cell.Has(connID)
		}
	}
	return false
}

// Broadcast routes a frame to the specific [ROOM_CELL], excluding the sender.
// Returns false on room miss or mailbox overflow.
func (h *Hub) Broadcast(roomID string, frame []byte, exclude uuid.UUID) bool {
	if val, ok := h.cells.Load(roomID); ok {
		if cell, ok := val.(Celler); ok {
			if !cell.Push(broadcast{frame: frame, exclude: exclude}) {
				h.logger.Warn("ROOM_MAILBOX_OVERFLOW", "room_id", roomID)
				return false
			}
			return true
		}
	}
	return false
}

// Register ensures [IDEMPOTENT] cell creation and attaches a new connection.
func (h *Hub) Register(conn Connector) {
	roomID := conn.GetRoomID()

	// [LAZY_INIT] Create the cell only when the first connection arrives.
	val, ok := h.cells.Load(roomID)
	if !ok {
		fresh := NewCell(roomID, h.config.mailboxSize)
		actual, loaded := h.cells.LoadOrStore(roomID, fresh)
		if loaded {
			// Lost the race; stop the spare actor.
			fresh.Stop()
		}
		val = actual
	}

	if cell, ok := val.(Celler); ok {
		cell.Attach(conn)
	}
}

// Unregister performs [GRACEFUL_RECLAMATION] when a connection closes.
// If the room's local set becomes empty the cell itself is purged to bound
// memory.
func (h *Hub) Unregister(roomID string, connID uuid.UUID) {
	if val, ok := h.cells.Load(roomID); ok {
		if cell, ok := val.(Celler); ok {
			if cell.Detach(connID) {
				cell.Stop()
				h.cells.Delete(roomID)
			}
		}
	}
}

// EvictRoom force-closes every local connection of a room. Used when the
// management plane announces the room was closed.
func (h *Hub) EvictRoom(roomID string) {
	if val, ok := h.cells.LoadAndDelete(roomID); ok {
		if cell, ok := val.(Celler); ok {
			cell.EvictAll()
			cell.Stop()
			h.logger.Info("ROOM_EVICTED", "room_id", roomID)
		}
	}
}

// Shutdown stops all cell actors and closes their connections.
func (h *Hub) Shutdown() {
	h.cells.Range(func(key, val any) bool {
		if cell, ok := val.(Celler); ok {
			cell.EvictAll()
			cell.Stop()
		}
		h.cells.Delete(key)
		return true
	})
}
