package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"collab-board/internal/room"
	"collab-board/internal/store"
	ws "collab-board/internal/websocket"
	"collab-board/pkg/logger"
)

type WebSocketHandlers struct {
	manager          *room.Manager
	store            store.Store
	maxContentLength int
	upgrader         websocket.Upgrader
}

func NewWebSocketHandlers(manager *room.Manager, st store.Store, maxContentLength int) *WebSocketHandlers {
	return &WebSocketHandlers{
		manager:          manager,
		store:            st,
		maxContentLength: maxContentLength,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket gates every new realtime connection behind token+room
// validation before any room-scoped work is allowed. Each rejection is
// distinguishable so clients can tell a bad link from an expired room.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	roomID := r.URL.Query().Get("roomId")
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "Anonymous"
	}

	if token == "" || roomID == "" {
		http.Error(w, "missing token or roomId", http.StatusUnauthorized)
		return
	}

	resolved, err := h.store.ResolveToken(r.Context(), token)
	if err != nil || resolved != roomID {
		http.Error(w, "invalid token for this room", http.StatusUnauthorized)
		return
	}

	if _, err := h.store.GetRoom(r.Context(), roomID); err != nil {
		http.Error(w, "room does not exist", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.manager, conn, username, roomID, h.maxContentLength)

	go client.WritePump()

	// Join before the read pump starts: the snapshot must reach the client
	// ahead of anything it manages to send.
	if err := h.manager.Join(r.Context(), client, roomID); err != nil {
		logger.Error("Join error for %s: %v", roomID, err)
		conn.Close()
		return
	}

	go client.ReadPump()
}
