package http

import (
	"log"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/registry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *nethttp.Request) bool { return true },
}

// GET /v1/tracking/ws/:booking_id
//
// Persistent watcher connection. On open the server pushes one "connected"
// frame with the last known position; every report then arrives as a
// "location_update" frame. A client may send "get_location" to force an
// immediate re-send of the current snapshot.
func (h *TrackingHandler) Watch(c *gin.Context) {
	key, sub, initial, err := h.svc.Subscribe(c.Request.Context(), actorFrom(c), c.Param("booking_id"))
	if err != nil {
		writeErr(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.svc.Unsubscribe(key, sub)
		log.Printf("[tracking] ws upgrade error: %v", err)
		return
	}

	// no concurrent writer yet: the write pump starts after this frame
	if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
		h.svc.Unsubscribe(key, sub)
		_ = conn.Close()
		return
	}

	go writePump(conn, sub)
	h.readPump(conn, key, sub)
}

// writePump is the connection's only writer once the initial frame is out.
// The subscription channel closes when the watcher is unsubscribed or
// dropped as too slow.
func writePump(conn *websocket.Conn, sub *registry.Subscription) {
	for payload := range sub.C() {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = conn.Close()
			return
		}
	}
	_ = conn.Close()
}

func (h *TrackingHandler) readPump(conn *websocket.Conn, key domain.SessionKey, sub *registry.Subscription) {
	defer func() {
		h.svc.Unsubscribe(key, sub)
		_ = conn.Close()
	}()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "get_location" {
			sub.Send(h.svc.SnapshotMessage(key))
		}
	}
}
