package models

import "time"

// Room is the shared record replicated through the state store across all
// instances. It is always read-modify-written as a whole: two concurrent
// writers are resolved by last write observed by the store.
type Room struct {
	Content    string    `json:"content"`
	Users      []User    `json:"users"`
	CreatedAt  time.Time `json:"createdAt"`
	Token      string    `json:"token"`
	InstanceID string    `json:"instanceId"`
}

// User is one presence entry. ID is the connection id, unique per socket and
// scoped to the instance that holds the socket.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	InstanceID string `json:"instanceId,omitempty"`
}

// RemoveUser drops the presence entry for the given connection id, if present.
func (r *Room) RemoveUser(connID string) {
	users := r.Users[:0]
	for _, u := range r.Users {
		if u.ID != connID {
			users = append(users, u)
		}
	}
	r.Users = users
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

type StatusResponse struct {
	InstanceID             string `json:"instanceId"`
	UptimeSeconds          int64  `json:"uptimeSeconds"`
	LocalActiveConnections int64  `json:"localActiveConnections"`
	TotalLocalConnections  int64  `json:"totalLocalConnections"`
	EventsPerMinute        int    `json:"eventsPerMinute"`
	ServerTime             string `json:"serverTime"`
	RedisConnected         bool   `json:"redisConnected"`
	TotalInstances         int    `json:"totalInstances,omitempty"`
}
