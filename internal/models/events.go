package models

import "time"

type EventType string

const (
	EventInitialize     EventType = "initialize"
	EventUpdate         EventType = "update"
	EventNotification   EventType = "notification"
	EventUsersUpdate    EventType = "users-update"
	EventTyping         EventType = "typing"
	EventError          EventType = "error"
	EventServerShutdown EventType = "server-shutdown"
)

// ClientMessage is what a connected socket may send inbound.
type ClientMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

// InitializeEvent is the room snapshot sent to a connection right after join.
type InitializeEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
	Users   []User    `json:"users"`
}

type UpdateEvent struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp string    `json:"timestamp"`
}

type NotificationEvent struct {
	Type      EventType `json:"type"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	User      *User     `json:"user,omitempty"`
	Timestamp string    `json:"timestamp"`
}

type UsersUpdateEvent struct {
	Type  EventType `json:"type"`
	Users []User    `json:"users"`
}

type TypingEvent struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	IsTyping bool      `json:"isTyping"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// Replicated event kinds carried over the bridge.
const (
	KindContentUpdate  = "content-update"
	KindPresenceJoined = "presence-joined"
	KindPresenceLeft   = "presence-left"
)

// ReplicatedEvent is the cross-instance message published on the bridge.
// InstanceID identifies the originating instance; an instance must discard
// any event tagged with its own id. That tag is the sole echo suppression.
type ReplicatedEvent struct {
	Kind       string    `json:"kind"`
	RoomID     string    `json:"roomId"`
	Content    string    `json:"content,omitempty"`
	User       User      `json:"user"`
	InstanceID string    `json:"instanceId"`
	Timestamp  time.Time `json:"timestamp"`
}
