package mirror

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"aiva-chat-client/internal/chat"
)

const (
	snapshotKeyPrefix = "chat:mirror:"
	currentKeyPrefix  = "chat:current:"
)

// Redis is the mirror backend for setups that already run a local Redis.
// Keys are written without TTL; the snapshot must outlive restarts.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (m *Redis) SaveSnapshot(ctx context.Context, userID string, sessions []*chat.Session) error {
	payload, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, snapshotKeyPrefix+userID, payload, 0).Err()
}

func (m *Redis) LoadSnapshot(ctx context.Context, userID string) ([]*chat.Session, error) {
	payload, err := m.rdb.Get(ctx, snapshotKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return []*chat.Session{}, nil
	}
	if err != nil {
		return nil, err
	}
	var sessions []*chat.Session
	if err := json.Unmarshal(payload, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (m *Redis) SaveCurrentSession(ctx context.Context, userID, sessionID string) error {
	return m.rdb.Set(ctx, currentKeyPrefix+userID, sessionID, 0).Err()
}

func (m *Redis) CurrentSession(ctx context.Context, userID string) (string, error) {
	id, err := m.rdb.Get(ctx, currentKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
