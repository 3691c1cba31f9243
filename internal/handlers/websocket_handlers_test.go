package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-board/internal/bridge"
	"collab-board/internal/metrics"
	"collab-board/internal/models"
	"collab-board/internal/room"
	"collab-board/internal/store"
)

// stubStore lets handshake tests force states the MemoryStore cannot reach
// through its public contract, like a token that outlives its room.
type stubStore struct {
	store.Store
	resolve map[string]string
	rooms   map[string]*models.Room
}

func (s *stubStore) ResolveToken(ctx context.Context, token string) (string, error) {
	roomID, ok := s.resolve[token]
	if !ok {
		return "", store.ErrNotFound
	}
	return roomID, nil
}

func (s *stubStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func newHandshakeHandlers(st store.Store) *WebSocketHandlers {
	m := room.NewManager(st, bridge.NewNoopBridge(), metrics.NewCollector(), "i1", 100000, 0)
	return NewWebSocketHandlers(m, st, 100000)
}

func TestHandshakeRejections(t *testing.T) {
	st := &stubStore{
		resolve: map[string]string{
			"good-token":  "room-1",
			"other-token": "room-2",
			"stale-token": "room-gone",
		},
		rooms: map[string]*models.Room{
			"room-1": {Token: "good-token"},
		},
	}
	h := newHandshakeHandlers(st)

	tests := []struct {
		name     string
		query    string
		wantBody string
	}{
		{
			name:     "missing token",
			query:    "roomId=room-1",
			wantBody: "missing token or roomId",
		},
		{
			name:     "missing room id",
			query:    "token=good-token",
			wantBody: "missing token or roomId",
		},
		{
			name:     "unknown token",
			query:    "roomId=room-1&token=bogus",
			wantBody: "invalid token for this room",
		},
		{
			name:     "token for a different room",
			query:    "roomId=room-1&token=other-token",
			wantBody: "invalid token for this room",
		},
		{
			name:     "token resolves but room is gone",
			query:    "roomId=room-gone&token=stale-token",
			wantBody: "room does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws?"+tt.query, nil)
			rec := httptest.NewRecorder()

			h.HandleWebSocket(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
		})
	}
}

func TestCreateRoomEndpoint(t *testing.T) {
	st := store.NewMemoryStore("i1")
	m := room.NewManager(st, bridge.NewNoopBridge(), metrics.NewCollector(), "i1", 100000, 0)
	h := NewRoomHandlers(m, st, metrics.NewCollector(), "i1")

	req := httptest.NewRequest(http.MethodPost, "/api/create-room", nil)
	rec := httptest.NewRecorder()
	h.CreateRoom(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "roomId")
	assert.Contains(t, rec.Body.String(), "token")
}

func TestStatusReportsDisconnectedBackend(t *testing.T) {
	st := store.NewMemoryStore("i1")
	m := room.NewManager(st, bridge.NewNoopBridge(), metrics.NewCollector(), "i1", 100000, 0)
	h := NewRoomHandlers(m, st, metrics.NewCollector(), "i1")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redisConnected":false`)
	assert.Contains(t, rec.Body.String(), `"instanceId":"i1"`)
	assert.NotContains(t, rec.Body.String(), "totalInstances")
}
