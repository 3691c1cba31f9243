package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"collab-board/internal/models"
)

// ErrNotFound is returned for missing rooms and tokens. Remote backend
// failures are absorbed and reported the same way: a transient miss must look
// like a real miss to connection-handling code, never crash it.
var ErrNotFound = errors.New("not found")

// Store is the shared room/token state shared by all instances. The redis
// implementation is the fleet-wide source of truth; the memory implementation
// is the same-process fallback with degraded guarantees (no cross-instance
// visibility, no TTL cleanup).
type Store interface {
	// CreateRoom writes a fresh empty room and its token mapping, both under
	// the configured expiry, and returns the generated pair.
	CreateRoom(ctx context.Context) (roomID, token string, err error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// SetRoom overwrites the whole record and refreshes its expiry.
	SetRoom(ctx context.Context, roomID string, room *models.Room) error
	ResolveToken(ctx context.Context, token string) (string, error)
	// DeleteRoom removes the room record and invalidates its token.
	DeleteRoom(ctx context.Context, roomID, token string) error

	// Heartbeat registers this instance in the fleet-membership set.
	Heartbeat(ctx context.Context, instanceID string) error
	InstanceCount(ctx context.Context) (int, error)

	// Distributed reports whether state is visible across instances.
	Distributed() bool
	Close() error
}

func newRoomID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate room id: %w", err)
	}
	return fmt.Sprintf("room-%x", buf), nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}
