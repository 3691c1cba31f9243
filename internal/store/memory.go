package store

import (
	"context"
	"sync"
	"time"

	"collab-board/internal/models"
)

// MemoryStore is the same-process fallback used when Redis is unreachable at
// startup. It honors the Store contract with degraded guarantees: state lives
// only for the process lifetime and is invisible to other instances. Rooms
// are reaped by the room manager's drain timer instead of a TTL.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*models.Room
	tokens   map[string]string
	instance string
}

func NewMemoryStore(instanceID string) *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*models.Room),
		tokens:   make(map[string]string),
		instance: instanceID,
	}
}

func (s *MemoryStore) CreateRoom(ctx context.Context) (string, string, error) {
	roomID, err := newRoomID()
	if err != nil {
		return "", "", err
	}
	token, err := newToken()
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = &models.Room{
		Content:    "",
		Users:      []models.User{},
		CreatedAt:  time.Now(),
		Token:      token,
		InstanceID: s.instance,
	}
	s.tokens[token] = roomID
	return roomID, token, nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *room
	copied.Users = append([]models.User(nil), room.Users...)
	return &copied, nil
}

func (s *MemoryStore) SetRoom(ctx context.Context, roomID string, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *room
	copied.Users = append([]models.User(nil), room.Users...)
	s.rooms[roomID] = &copied
	return nil
}

func (s *MemoryStore) ResolveToken(ctx context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.tokens[token]
	if !ok {
		return "", ErrNotFound
	}
	return roomID, nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, roomID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	delete(s.tokens, token)
	return nil
}

func (s *MemoryStore) Heartbeat(ctx context.Context, instanceID string) error {
	return nil
}

func (s *MemoryStore) InstanceCount(ctx context.Context) (int, error) {
	return 1, nil
}

func (s *MemoryStore) Distributed() bool {
	return false
}

func (s *MemoryStore) Close() error {
	return nil
}
