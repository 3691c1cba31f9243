package bridge

import (
	"context"

	"collab-board/internal/models"
	"collab-board/pkg/logger"
)

// NoopBridge is used when the distributed backend is unreachable. No
// cross-instance propagation happens and the instance runs as an isolated
// single-node system. This is an explicit mode, announced at startup, not a
// hidden failure.
type NoopBridge struct{}

func NewNoopBridge() *NoopBridge {
	logger.Info("Bridge disabled: running in single-instance mode")
	return &NoopBridge{}
}

func (b *NoopBridge) Publish(ctx context.Context, channel string, ev models.ReplicatedEvent) {}

func (b *NoopBridge) Subscribe(ctx context.Context, channel string, handler Handler) {}

func (b *NoopBridge) Close() error { return nil }
