package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collab-board/internal/models"
	"collab-board/internal/room"
	"collab-board/pkg/logger"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one locally-connected socket. It implements room.Conn; the room
// manager only ever sees the interface, so tests can swap in fakes.
type Client struct {
	manager  *room.Manager
	conn     *websocket.Conn
	send     chan []byte
	id       string
	username string
	roomID   string

	readLimit int64
	leaveOnce sync.Once
}

func NewClient(manager *room.Manager, conn *websocket.Conn, username, roomID string, maxContentLength int) *Client {
	return &Client{
		manager:  manager,
		conn:     conn,
		send:     make(chan []byte, 256),
		id:       uuid.NewString(),
		username: username,
		roomID:   roomID,
		// Generous headroom over the content ceiling: the frame carries JSON
		// framing and escaped characters on top of the raw content.
		readLimit: int64(maxContentLength)*4 + 1024,
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Username() string { return c.username }

// Send marshals and enqueues without blocking. A client that cannot drain its
// buffer loses the message rather than stalling the broadcast path.
func (c *Client) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Error marshaling event for %s: %v", c.id, err)
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Debug("Dropping event for slow client %s", c.id)
	}
}

// ReadPump forwards inbound client messages to the room manager. Its deferred
// cleanup is the single authoritative leave trigger: voluntary close, network
// drop and forced close all land here exactly once.
func (c *Client) ReadPump() {
	defer c.leave()

	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(models.ErrorEvent{Type: models.EventError, Message: "Invalid message"})
			continue
		}

		ctx := context.Background()
		switch msg.Type {
		case "update":
			if err := c.manager.Update(ctx, c, c.roomID, msg.Content); err != nil {
				c.Send(models.ErrorEvent{Type: models.EventError, Message: "Invalid content"})
			}
		case "typing":
			c.manager.Typing(c, c.roomID, msg.IsTyping)
		default:
			logger.Debug("Dropping unknown message type %q from %s", msg.Type, c.id)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) leave() {
	c.leaveOnce.Do(func() {
		c.manager.Leave(context.Background(), c, c.roomID)
		c.conn.Close()
	})
}
