package room

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-board/internal/bridge"
	"collab-board/internal/metrics"
	"collab-board/internal/models"
	"collab-board/internal/store"
)

type mockConn struct {
	id       string
	username string

	mu       sync.Mutex
	received []any
}

func (m *mockConn) ID() string       { return m.id }
func (m *mockConn) Username() string { return m.username }

func (m *mockConn) Send(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, v)
}

func (m *mockConn) events() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.received...)
}

func (m *mockConn) updates() []models.UpdateEvent {
	var out []models.UpdateEvent
	for _, ev := range m.events() {
		if u, ok := ev.(models.UpdateEvent); ok {
			out = append(out, u)
		}
	}
	return out
}

// fakeBus delivers published events synchronously to every subscriber on the
// channel, including the publisher's own instance, the same way Redis pub/sub
// echoes back to a subscribed publisher.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[string][]bridge.Handler
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string][]bridge.Handler)}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, ev models.ReplicatedEvent) {
	b.mu.Lock()
	handlers := append([]bridge.Handler(nil), b.handlers[channel]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string, handler bridge.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
}

func (b *fakeBus) Close() error { return nil }

func newTestManager(t *testing.T, st store.Store, bus bridge.Bridge, instanceID string) *Manager {
	t.Helper()
	m := NewManager(st, bus, metrics.NewCollector(), instanceID, 100000, 50*time.Millisecond)
	m.Start(context.Background())
	return m
}

func createAndJoin(t *testing.T, m *Manager, c *mockConn) (roomID, token string) {
	t.Helper()
	ctx := context.Background()
	roomID, token, err := m.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Join(ctx, c, roomID))
	return roomID, token
}

func TestJoinSnapshotContainsSelfOnce(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore("i1"), newFakeBus(), "i1")
	conn := &mockConn{id: "c1", username: "alice"}

	createAndJoin(t, m, conn)

	events := conn.events()
	require.NotEmpty(t, events)

	init, ok := events[0].(models.InitializeEvent)
	require.True(t, ok, "first event must be the snapshot, got %T", events[0])
	assert.Equal(t, models.EventInitialize, init.Type)

	self := 0
	for _, u := range init.Users {
		if u.ID == "c1" {
			self++
		}
	}
	assert.Equal(t, 1, self, "snapshot must contain the joiner exactly once")
}

func TestJoinUnknownRoomFails(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore("i1"), newFakeBus(), "i1")
	conn := &mockConn{id: "c1", username: "alice"}

	err := m.Join(context.Background(), conn, "room-missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, conn.events())
}

func TestUpdateFanoutExcludesSender(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore("i1"), newFakeBus(), "i1")
	ctx := context.Background()

	a := &mockConn{id: "a", username: "alice"}
	b := &mockConn{id: "b", username: "bob"}
	roomID, _ := createAndJoin(t, m, a)
	require.NoError(t, m.Join(ctx, b, roomID))

	require.NoError(t, m.Update(ctx, a, roomID, "hello from alice"))

	require.Len(t, b.updates(), 1)
	assert.Equal(t, "hello from alice", b.updates()[0].Content)
	assert.Equal(t, "a", b.updates()[0].UserID)
	assert.Empty(t, a.updates(), "sender must not receive its own update")

	require.NoError(t, m.Update(ctx, b, roomID, "hello from bob"))
	require.Len(t, a.updates(), 1)
	assert.Equal(t, "hello from bob", a.updates()[0].Content)
	assert.Len(t, b.updates(), 1)
}

func TestUpdateContentCeiling(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore("i1"), newFakeBus(), "i1")
	ctx := context.Background()

	conn := &mockConn{id: "c1", username: "alice"}
	roomID, _ := createAndJoin(t, m, conn)

	atLimit := strings.Repeat("a", 100000)
	require.NoError(t, m.Update(ctx, conn, roomID, atLimit))

	room, err := m.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, atLimit, room.Content)

	overLimit := strings.Repeat("b", 100001)
	err = m.Update(ctx, conn, roomID, overLimit)
	assert.ErrorIs(t, err, ErrContentTooLarge)

	room, err = m.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, atLimit, room.Content, "rejected update must leave content unchanged")
}

func TestTypingFanoutNotPersisted(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore("i1"), newFakeBus(), "i1")
	ctx := context.Background()

	a := &mockConn{id: "a", username: "alice"}
	b := &mockConn{id: "b", username: "bob"}
	roomID, _ := createAndJoin(t, m, a)
	require.NoError(t, m.Join(ctx, b, roomID))

	m.Typing(a, roomID, true)

	var got []models.TypingEvent
	for _, ev := range b.events() {
		if te, ok := ev.(models.TypingEvent); ok {
			got = append(got, te)
		}
	}
	require.Len(t, got, 1)
	assert.True(t, got[0].IsTyping)
	assert.Equal(t, "alice", got[0].Username)

	for _, ev := range a.events() {
		_, isTyping := ev.(models.TypingEvent)
		assert.False(t, isTyping, "typing must not echo to the sender")
	}

	room, err := m.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Content)
}

func TestTwoInstancePropagation(t *testing.T) {
	// Two managers sharing one store and one bus stand in for two instances
	// behind a load balancer sharing Redis.
	shared := store.NewMemoryStore("shared")
	bus := newFakeBus()
	m1 := newTestManager(t, shared, bus, "i1")
	m2 := newTestManager(t, shared, bus, "i2")
	ctx := context.Background()

	c1 := &mockConn{id: "c1", username: "alice"}
	c2 := &mockConn{id: "c2", username: "bob"}

	roomID, _, err := m1.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, m1.Join(ctx, c1, roomID))
	require.NoError(t, m2.Join(ctx, c2, roomID))

	require.NoError(t, m1.Update(ctx, c1, roomID, "edit on instance 1"))

	require.Len(t, c2.updates(), 1, "socket on instance 2 must observe the update")
	assert.Equal(t, "edit on instance 1", c2.updates()[0].Content)
	assert.Empty(t, c1.updates(), "replicated event must not echo back to the origin")
}

func TestReplicatedUpdateRedeliveryIsIdempotent(t *testing.T) {
	shared := store.NewMemoryStore("shared")
	bus := newFakeBus()
	m1 := newTestManager(t, shared, bus, "i1")
	m2 := newTestManager(t, shared, bus, "i2")
	ctx := context.Background()

	c2 := &mockConn{id: "c2", username: "bob"}
	roomID, _, err := m1.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, m2.Join(ctx, c2, roomID))

	ev := models.ReplicatedEvent{
		Kind:       models.KindContentUpdate,
		RoomID:     roomID,
		Content:    "same content",
		User:       models.User{ID: "c1", Username: "alice", InstanceID: "i1"},
		InstanceID: "i1",
		Timestamp:  time.Now(),
	}
	bus.Publish(ctx, bridge.ChannelUpdates, ev)
	bus.Publish(ctx, bridge.ChannelUpdates, ev)

	// The receiving instance forwards each delivery but never re-persists:
	// applying the same content twice yields the same room content.
	assert.Len(t, c2.updates(), 2)
	for _, u := range c2.updates() {
		assert.Equal(t, "same content", u.Content)
	}

	room, err := shared.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Content, "replicated apply must not write the store")
}

func TestReplicatedPresenceFanout(t *testing.T) {
	shared := store.NewMemoryStore("shared")
	bus := newFakeBus()
	m1 := newTestManager(t, shared, bus, "i1")
	m2 := newTestManager(t, shared, bus, "i2")
	ctx := context.Background()

	c2 := &mockConn{id: "c2", username: "bob"}
	roomID, _, err := m1.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, m2.Join(ctx, c2, roomID))

	c1 := &mockConn{id: "c1", username: "alice"}
	require.NoError(t, m1.Join(ctx, c1, roomID))

	var notifications []models.NotificationEvent
	var userLists []models.UsersUpdateEvent
	for _, ev := range c2.events() {
		switch e := ev.(type) {
		case models.NotificationEvent:
			notifications = append(notifications, e)
		case models.UsersUpdateEvent:
			userLists = append(userLists, e)
		}
	}

	found := false
	for _, n := range notifications {
		if n.Kind == models.KindPresenceJoined && n.User != nil && n.User.ID == "c1" {
			found = true
		}
	}
	assert.True(t, found, "remote join must reach local sockets as a notification")

	require.NotEmpty(t, userLists)
	last := userLists[len(userLists)-1]
	ids := make([]string, 0, len(last.Users))
	for _, u := range last.Users {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, "c1")
	assert.Contains(t, ids, "c2")
}

func TestLeaveNotifiesAndUpdatesPresence(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore("i1"), newFakeBus(), "i1")
	ctx := context.Background()

	a := &mockConn{id: "a", username: "alice"}
	b := &mockConn{id: "b", username: "bob"}
	roomID, _ := createAndJoin(t, m, a)
	require.NoError(t, m.Join(ctx, b, roomID))

	m.Leave(ctx, b, roomID)
	m.Leave(ctx, b, roomID) // second call is a no-op

	room, err := m.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, room.Users, 1)
	assert.Equal(t, "a", room.Users[0].ID)

	var leftSeen int
	for _, ev := range a.events() {
		if n, ok := ev.(models.NotificationEvent); ok && n.Kind == "user-left" {
			leftSeen++
		}
	}
	assert.Equal(t, 1, leftSeen)
}

func TestDrainExpiryInvalidatesToken(t *testing.T) {
	st := store.NewMemoryStore("i1")
	m := newTestManager(t, st, newFakeBus(), "i1")
	ctx := context.Background()

	conn := &mockConn{id: "c1", username: "alice"}
	roomID, token := createAndJoin(t, m, conn)

	m.Leave(ctx, conn, roomID)

	assert.Eventually(t, func() bool {
		_, err := st.ResolveToken(ctx, token)
		return err != nil
	}, time.Second, 10*time.Millisecond, "token must become unresolvable after the drain grace")

	_, err := st.GetRoom(ctx, roomID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRejoinCancelsDrain(t *testing.T) {
	st := store.NewMemoryStore("i1")
	m := newTestManager(t, st, newFakeBus(), "i1")
	ctx := context.Background()

	conn := &mockConn{id: "c1", username: "alice"}
	roomID, token := createAndJoin(t, m, conn)

	m.Leave(ctx, conn, roomID)

	rejoin := &mockConn{id: "c2", username: "alice"}
	require.NoError(t, m.Join(ctx, rejoin, roomID))

	time.Sleep(150 * time.Millisecond)

	resolved, err := st.ResolveToken(ctx, token)
	require.NoError(t, err, "rejoin within the grace period must keep the room alive")
	assert.Equal(t, roomID, resolved)
}

func TestFallbackModeFullLifecycle(t *testing.T) {
	// Backend unreachable from startup: memory store plus inert bridge.
	st := store.NewMemoryStore("i1")
	m := newTestManager(t, st, bridge.NewNoopBridge(), "i1")
	ctx := context.Background()

	assert.False(t, st.Distributed())

	a := &mockConn{id: "a", username: "alice"}
	b := &mockConn{id: "b", username: "bob"}
	roomID, _ := createAndJoin(t, m, a)
	require.NoError(t, m.Join(ctx, b, roomID))

	require.NoError(t, m.Update(ctx, a, roomID, "still works offline"))
	require.Len(t, b.updates(), 1)

	m.Leave(ctx, a, roomID)
	m.Leave(ctx, b, roomID)
	assert.Equal(t, 0, m.LocalCount(roomID))
}
