package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"collab-board/internal/bridge"
	"collab-board/internal/metrics"
	"collab-board/internal/models"
	"collab-board/internal/store"
	"collab-board/pkg/logger"
)

var (
	// ErrContentTooLarge rejects oversized updates; the room is left unchanged
	// and only the sender is told.
	ErrContentTooLarge = errors.New("content exceeds maximum length")

	// ErrRoomNotFound covers rooms that expired or were never created.
	ErrRoomNotFound = errors.New("room does not exist")
)

// Conn is one locally-connected socket. Implementations must make Send
// non-blocking; this instance exclusively owns its local sockets and other
// instances only ever reach them through replicated events.
type Conn interface {
	ID() string
	Username() string
	Send(v any)
}

// Manager owns the room lifecycle on this instance and mediates between the
// shared store, the pub/sub bridge and the local connection registry.
type Manager struct {
	store      store.Store
	bridge     bridge.Bridge
	metrics    *metrics.Collector
	instanceID string
	maxContent int
	drainGrace time.Duration

	mu    sync.RWMutex
	rooms map[string]map[string]Conn

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func NewManager(st store.Store, br bridge.Bridge, collector *metrics.Collector, instanceID string, maxContent int, drainGrace time.Duration) *Manager {
	return &Manager{
		store:      st,
		bridge:     br,
		metrics:    collector,
		instanceID: instanceID,
		maxContent: maxContent,
		drainGrace: drainGrace,
		rooms:      make(map[string]map[string]Conn),
		timers:     make(map[string]*time.Timer),
	}
}

// Start subscribes to the cross-instance channels. Handlers filter out
// self-originated events before applying anything.
func (m *Manager) Start(ctx context.Context) {
	m.bridge.Subscribe(ctx, bridge.ChannelUpdates, m.handleReplicatedUpdate)
	m.bridge.Subscribe(ctx, bridge.ChannelEvents, m.handleReplicatedPresence)
}

func (m *Manager) CreateRoom(ctx context.Context) (string, string, error) {
	roomID, token, err := m.store.CreateRoom(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to create room: %w", err)
	}
	logger.Info("[%s] Room created: %s", m.instanceID, roomID)
	return roomID, token, nil
}

// Join adds the connection to the room's presence set, persists it, and sends
// the snapshot to the joining connection before any further broadcasts so the
// new client neither misses earlier state nor sees its own join notification.
func (m *Manager) Join(ctx context.Context, c Conn, roomID string) error {
	m.cancelDrain(roomID)

	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return ErrRoomNotFound
	}

	user := models.User{ID: c.ID(), Username: c.Username(), InstanceID: m.instanceID}
	room.Users = append(room.Users, user)
	m.store.SetRoom(ctx, roomID, room)

	m.mu.Lock()
	conns, ok := m.rooms[roomID]
	if !ok {
		conns = make(map[string]Conn)
		m.rooms[roomID] = conns
	}
	conns[c.ID()] = c
	m.mu.Unlock()

	m.metrics.ConnectionOpened()
	m.metrics.RecordEvent()

	c.Send(models.InitializeEvent{
		Type:    models.EventInitialize,
		Content: room.Content,
		Users:   room.Users,
	})

	now := time.Now()
	m.broadcastLocal(roomID, models.NotificationEvent{
		Type:      models.EventNotification,
		Kind:      "user-joined",
		Message:   fmt.Sprintf("%s joined the session", c.Username()),
		User:      &user,
		Timestamp: now.Format(time.RFC3339),
	}, c.ID())
	m.broadcastLocal(roomID, models.UsersUpdateEvent{
		Type:  models.EventUsersUpdate,
		Users: room.Users,
	}, "")

	m.bridge.Publish(ctx, bridge.ChannelEvents, models.ReplicatedEvent{
		Kind:       models.KindPresenceJoined,
		RoomID:     roomID,
		User:       user,
		InstanceID: m.instanceID,
		Timestamp:  now,
	})

	logger.Info("[%s] Join: %s (%s) -> %s", m.instanceID, c.Username(), c.ID(), roomID)
	return nil
}

// Update overwrites the room content. Last write observed by the store wins;
// there is no compare-and-swap and no merge of concurrent edits.
func (m *Manager) Update(ctx context.Context, c Conn, roomID, content string) error {
	if utf8.RuneCountInString(content) > m.maxContent {
		return ErrContentTooLarge
	}

	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return ErrRoomNotFound
	}

	room.Content = content
	m.store.SetRoom(ctx, roomID, room)
	m.metrics.RecordEvent()

	now := time.Now()
	m.broadcastLocal(roomID, models.UpdateEvent{
		Type:      models.EventUpdate,
		Content:   content,
		UserID:    c.ID(),
		Username:  c.Username(),
		Timestamp: now.Format(time.RFC3339),
	}, c.ID())

	m.bridge.Publish(ctx, bridge.ChannelUpdates, models.ReplicatedEvent{
		Kind:       models.KindContentUpdate,
		RoomID:     roomID,
		Content:    content,
		User:       models.User{ID: c.ID(), Username: c.Username(), InstanceID: m.instanceID},
		InstanceID: m.instanceID,
		Timestamp:  now,
	})
	return nil
}

// Typing relays the signal to other local sockets. It is never persisted and
// never replicated.
func (m *Manager) Typing(c Conn, roomID string, isTyping bool) {
	m.metrics.RecordEvent()
	m.broadcastLocal(roomID, models.TypingEvent{
		Type:     models.EventTyping,
		UserID:   c.ID(),
		Username: c.Username(),
		IsTyping: isTyping,
	}, c.ID())
}

// Leave removes the connection's presence entry. The gateway guarantees it is
// called exactly once per socket, triggered by the socket reporting closed.
func (m *Manager) Leave(ctx context.Context, c Conn, roomID string) {
	m.mu.Lock()
	conns, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, registered := conns[c.ID()]; !registered {
		m.mu.Unlock()
		return
	}
	delete(conns, c.ID())
	remaining := len(conns)
	if remaining == 0 {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()

	m.metrics.ConnectionClosed()
	m.metrics.RecordEvent()

	user := models.User{ID: c.ID(), Username: c.Username(), InstanceID: m.instanceID}
	now := time.Now()

	room, err := m.store.GetRoom(ctx, roomID)
	if err == nil {
		room.RemoveUser(c.ID())
		m.store.SetRoom(ctx, roomID, room)

		m.broadcastLocal(roomID, models.NotificationEvent{
			Type:      models.EventNotification,
			Kind:      "user-left",
			Message:   fmt.Sprintf("%s left the session", c.Username()),
			User:      &user,
			Timestamp: now.Format(time.RFC3339),
		}, "")
		m.broadcastLocal(roomID, models.UsersUpdateEvent{
			Type:  models.EventUsersUpdate,
			Users: room.Users,
		}, "")
	}

	m.bridge.Publish(ctx, bridge.ChannelEvents, models.ReplicatedEvent{
		Kind:       models.KindPresenceLeft,
		RoomID:     roomID,
		User:       user,
		InstanceID: m.instanceID,
		Timestamp:  now,
	})

	if remaining == 0 {
		m.armDrain(roomID)
	}

	logger.Info("[%s] Leave: %s (%s) <- %s", m.instanceID, c.Username(), c.ID(), roomID)
}

// LocalCount reports how many sockets this instance holds for the room.
func (m *Manager) LocalCount(roomID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[roomID])
}

// Shutdown notifies every locally-connected socket before listeners close.
func (m *Manager) Shutdown() {
	m.timersMu.Lock()
	for roomID, t := range m.timers {
		t.Stop()
		delete(m.timers, roomID)
	}
	m.timersMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conns := range m.rooms {
		for _, c := range conns {
			c.Send(models.NotificationEvent{
				Type:      models.EventServerShutdown,
				Kind:      "server-shutdown",
				Message:   "Server is shutting down",
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}
	}
}

// handleReplicatedUpdate applies a content change originated on another
// instance to local presentation state only. The originating instance already
// persisted it, so re-writing the store here would just race the next edit.
func (m *Manager) handleReplicatedUpdate(ev models.ReplicatedEvent) {
	if ev.InstanceID == m.instanceID {
		return
	}

	m.broadcastLocal(ev.RoomID, models.UpdateEvent{
		Type:      models.EventUpdate,
		Content:   ev.Content,
		UserID:    ev.User.ID,
		Username:  ev.User.Username,
		Timestamp: ev.Timestamp.Format(time.RFC3339),
	}, "")
}

func (m *Manager) handleReplicatedPresence(ev models.ReplicatedEvent) {
	if ev.InstanceID == m.instanceID {
		return
	}

	var message string
	switch ev.Kind {
	case models.KindPresenceJoined:
		message = fmt.Sprintf("%s joined the session", ev.User.Username)
	case models.KindPresenceLeft:
		message = fmt.Sprintf("%s left the session", ev.User.Username)
	default:
		logger.Debug("Unknown presence event kind: %s", ev.Kind)
		return
	}

	user := ev.User
	m.broadcastLocal(ev.RoomID, models.NotificationEvent{
		Type:      models.EventNotification,
		Kind:      ev.Kind,
		Message:   message,
		User:      &user,
		Timestamp: ev.Timestamp.Format(time.RFC3339),
	}, "")

	// The store already holds the merged presence set written by the
	// originating instance.
	if room, err := m.store.GetRoom(context.Background(), ev.RoomID); err == nil {
		m.broadcastLocal(ev.RoomID, models.UsersUpdateEvent{
			Type:  models.EventUsersUpdate,
			Users: room.Users,
		}, "")
	}
}

func (m *Manager) broadcastLocal(roomID string, v any, excludeID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, c := range m.rooms[roomID] {
		if id == excludeID {
			continue
		}
		c.Send(v)
	}
}

// armDrain starts the grace timer for a room with zero local users. In
// distributed mode the shared record's TTL handles expiry, and other
// instances may still hold users, so the timer only runs on the fallback
// store where the local view is the whole fleet.
func (m *Manager) armDrain(roomID string) {
	if m.store.Distributed() {
		return
	}

	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if _, armed := m.timers[roomID]; armed {
		return
	}
	m.timers[roomID] = time.AfterFunc(m.drainGrace, func() { m.expireRoom(roomID) })
}

func (m *Manager) cancelDrain(roomID string) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if t, armed := m.timers[roomID]; armed {
		t.Stop()
		delete(m.timers, roomID)
	}
}

func (m *Manager) expireRoom(roomID string) {
	m.timersMu.Lock()
	delete(m.timers, roomID)
	m.timersMu.Unlock()

	if m.LocalCount(roomID) > 0 {
		return
	}

	ctx := context.Background()
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return
	}
	if len(room.Users) > 0 {
		return
	}

	m.store.DeleteRoom(ctx, roomID, room.Token)
	logger.Info("[%s] Room expired: %s", m.instanceID, roomID)
}
