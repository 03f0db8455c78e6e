package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/wangfenghuan/draw-backend/internal/domain/registry"
	"github.com/wangfenghuan/draw-backend/internal/service"
)

const (
	writeTimeout = 10 * time.Second
	// maxFrameSize bounds a single inbound client frame.
	maxFrameSize = 1 << 20
)

// WSHandler terminates client WebSocket connections for /ws/{room}.
//
// Admission runs BEFORE the upgrade: a principal without view capability gets
// a plain 403 and never holds a socket. After the upgrade the connection is
// split into the standard two pumps — a read loop on this goroutine and a
// write pump goroutine fed by the registry.
type WSHandler struct {
	logger        *slog.Logger
	syncer        service.Syncer
	admitter      service.Admitter
	upgrader      websocket.Upgrader
	maxViolations int
}

func NewWSHandler(logger *slog.Logger, syncer service.Syncer, admitter service.Admitter, maxViolations int) *WSHandler {
	return &WSHandler{
		logger:        logger,
		syncer:        syncer,
		admitter:      admitter,
		maxViolations: maxViolations,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

// principalFrom resolves the caller's identity. In production this comes from
// the auth gateway; header first, query fallback for browser clients.
func principalFrom(r *http.Request) string {
	if p := r.Header.Get("X-Principal-Id"); p != "" {
		return p
	}
	return r.URL.Query().Get("principal")
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	principal := principalFrom(r)
	if principal == "" {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	// 1. ADMISSION — once per connection, before any socket exists.
	adm, err := h.admitter.Check(r.Context(), principal, roomID)
	if err != nil {
		h.logger.Error("WS_ADMISSION_FAILED", "room_id", roomID, "err", err)
		http.Error(w, "admission unavailable", http.StatusBadGateway)
		return
	}
	if !adm.CanView {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "room_id", roomID, "err", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxFrameSize)

	// 3. ATTACH TO THE LOCAL REGISTRY
	conn, err := h.syncer.Subscribe(r.Context(), roomID, adm)
	if err != nil {
		h.logger.Error("WS_SUBSCRIBE_FAILED", "room_id", roomID, "err", err)
		return
	}
	defer func() {
		conn.Close()
		h.syncer.Unsubscribe(roomID, conn.GetID())
	}()

	h.logger.Info("WS_OPENED",
		"room_id", roomID,
		"conn_id", conn.GetID(),
		"can_edit", adm.CanEdit,
	)

	// 4. WRITE PUMP — registry → socket.
	go h.writePump(ws, conn)

	// 5. READ LOOP — socket → sync core.
	h.readLoop(ws, r, conn)

	h.logger.Info("WS_CLOSED",
		"room_id", roomID,
		"conn_id", conn.GetID(),
		"dropped", conn.Dropped(),
	)
}

func (h *WSHandler) writePump(ws *websocket.Conn, conn registry.Connector) {
	for {
		select {
		case <-conn.Done():
			// Unblock the read loop so the handler unwinds.
			ws.Close()
			return
		case frame := <-conn.Recv():
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				// Reader notices the dead socket and tears down.
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ws *websocket.Conn, r *http.Request, conn registry.Connector) {
	violations := 0
	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		if err := h.syncer.HandleFrame(r.Context(), conn, raw); err != nil {
			switch {
			case errors.Is(err, service.ErrPolicyViolation):
				h.closePolicy(ws, "capability violation")
				return
			case errors.Is(err, service.ErrMalformedFrame):
				violations++
				h.logger.Warn("WS_MALFORMED_FRAME",
					"room_id", conn.GetRoomID(),
					"conn_id", conn.GetID(),
					"violations", violations,
				)
				if violations >= h.maxViolations {
					h.closePolicy(ws, "too many malformed frames")
					return
				}
			default:
				// Transient backend failure; the client keeps its session.
				h.logger.Error("WS_FRAME_FAILED",
					"room_id", conn.GetRoomID(),
					"conn_id", conn.GetID(),
					"err", err,
				)
			}
		}
	}
}

func (h *WSHandler) closePolicy(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
