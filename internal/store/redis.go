package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"collab-board/internal/models"
	"collab-board/pkg/logger"
)

const (
	roomKeyPrefix  = "room:"
	tokenKeyPrefix = "token:"
	instancesKey   = "instances"

	// Liveness entries in the fleet set expire quickly so a dead instance
	// drops out of /status counts within a minute.
	instancesTTL = 60 * time.Second
)

// RedisStore keeps room and token records in Redis so every instance behind
// the load balancer observes the same state. All operations run under a
// bounded timeout; individual failures are logged and surfaced as ErrNotFound
// or silently dropped, never propagated to connection code.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	instance  string
}

func NewRedisStore(client *redis.Client, ttl, opTimeout time.Duration, instanceID string) *RedisStore {
	return &RedisStore{
		client:    client,
		ttl:       ttl,
		opTimeout: opTimeout,
		instance:  instanceID,
	}
}

func (s *RedisStore) CreateRoom(ctx context.Context) (string, string, error) {
	roomID, err := newRoomID()
	if err != nil {
		return "", "", err
	}
	token, err := newToken()
	if err != nil {
		return "", "", err
	}

	room := &models.Room{
		Content:    "",
		Users:      []models.User{},
		CreatedAt:  time.Now(),
		Token:      token,
		InstanceID: s.instance,
	}

	if err := s.SetRoom(ctx, roomID, room); err != nil {
		return "", "", err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.client.Set(ctx, tokenKeyPrefix+token, roomID, s.ttl).Err(); err != nil {
		logger.Error("Redis token set error: %v", err)
	}

	return roomID, token, nil
}

func (s *RedisStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, roomKeyPrefix+roomID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error("Redis get error for room %s: %v", roomID, err)
		}
		return nil, ErrNotFound
	}

	room := &models.Room{}
	if err := json.Unmarshal(data, room); err != nil {
		logger.Error("Corrupt room record %s: %v", roomID, err)
		return nil, ErrNotFound
	}
	return room, nil
}

func (s *RedisStore) SetRoom(ctx context.Context, roomID string, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		logger.Error("Failed to marshal room %s: %v", roomID, err)
		return nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.client.Set(ctx, roomKeyPrefix+roomID, data, s.ttl).Err(); err != nil {
		logger.Error("Redis set error for room %s: %v", roomID, err)
	}
	return nil
}

func (s *RedisStore) ResolveToken(ctx context.Context, token string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	roomID, err := s.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error("Redis token get error: %v", err)
		}
		return "", ErrNotFound
	}
	return roomID, nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, roomID, token string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.client.Del(ctx, roomKeyPrefix+roomID, tokenKeyPrefix+token).Err(); err != nil {
		logger.Error("Redis delete error for room %s: %v", roomID, err)
	}
	return nil
}

func (s *RedisStore) Heartbeat(ctx context.Context, instanceID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, instancesKey, instanceID)
	pipe.Expire(ctx, instancesKey, instancesTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Redis heartbeat error: %v", err)
	}
	return nil
}

func (s *RedisStore) InstanceCount(ctx context.Context) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	instances, err := s.client.SMembers(ctx, instancesKey).Result()
	if err != nil {
		logger.Error("Redis instance count error: %v", err)
		return 0, ErrNotFound
	}
	return len(instances), nil
}

func (s *RedisStore) Distributed() bool {
	return true
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// bound caps every remote call so a slow or dead backend cannot stall a
// connection goroutine.
func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}
