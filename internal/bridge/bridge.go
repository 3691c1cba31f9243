package bridge

import (
	"context"

	"collab-board/internal/models"
)

// Channel names. Content mutations and presence/lifecycle notifications are
// kept on separate channels so one stream can be muted without the other.
const (
	ChannelUpdates = "room-updates"
	ChannelEvents  = "room-events"
)

// Handler receives every message published on a subscribed channel, including
// ones this same process published. Filtering by originating-instance id is
// the handler's responsibility.
type Handler func(ev models.ReplicatedEvent)

// Bridge propagates room events between instances. Publish is best-effort and
// fire-and-forget: an update already applied locally must never block or fail
// on replication, so publish failures are logged and dropped here rather than
// handled at every call site.
type Bridge interface {
	Publish(ctx context.Context, channel string, ev models.ReplicatedEvent)
	Subscribe(ctx context.Context, channel string, handler Handler)
	Close() error
}
