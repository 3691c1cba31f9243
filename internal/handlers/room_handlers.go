package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"collab-board/internal/metrics"
	"collab-board/internal/models"
	"collab-board/internal/room"
	"collab-board/internal/store"
	"collab-board/pkg/logger"
)

type RoomHandlers struct {
	manager    *room.Manager
	store      store.Store
	metrics    *metrics.Collector
	instanceID string
}

func NewRoomHandlers(manager *room.Manager, st store.Store, collector *metrics.Collector, instanceID string) *RoomHandlers {
	return &RoomHandlers{
		manager:    manager,
		store:      st,
		metrics:    collector,
		instanceID: instanceID,
	}
}

// CreateRoom allocates a fresh room+token pair. No request body is required.
func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	roomID, token, err := h.manager.CreateRoom(r.Context())
	if err != nil {
		logger.Error("Create room error: %v", err)
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.CreateRoomResponse{RoomID: roomID, Token: token})
}

// Status reports this instance's counters and, in distributed mode, the
// number of live fleet members.
func (h *RoomHandlers) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.metrics.Snapshot()
	resp := models.StatusResponse{
		InstanceID:             h.instanceID,
		UptimeSeconds:          snap.UptimeSeconds,
		LocalActiveConnections: snap.ActiveConnections,
		TotalLocalConnections:  snap.TotalConnections,
		EventsPerMinute:        snap.EventsPerMinute,
		ServerTime:             time.Now().Format(time.RFC3339),
		RedisConnected:         h.store.Distributed(),
	}

	if h.store.Distributed() {
		// Refresh our own liveness before counting so a lone instance still
		// reports itself.
		h.store.Heartbeat(r.Context(), h.instanceID)
		if count, err := h.store.InstanceCount(r.Context()); err == nil {
			resp.TotalInstances = count
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
