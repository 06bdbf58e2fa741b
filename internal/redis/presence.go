package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const presencePrefix = "presence:"

// PresenceTTL bounds how long a presence marker outlives a dead instance.
const PresenceTTL = 90 * time.Second

// PresenceStore mirrors connected users to Redis.
type PresenceStore struct {
	client *redis.Client
}

// NewPresenceStore creates a new PresenceStore.
func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

// MarkOnline records that the user is connected to the given room.
func (s *PresenceStore) MarkOnline(ctx context.Context, userID, room string) error {
	return s.client.Set(ctx, presencePrefix+userID, room, PresenceTTL).Err()
}

// MarkOffline removes the user's presence marker.
func (s *PresenceStore) MarkOffline(ctx context.Context, userID string) error {
	return s.client.Del(ctx, presencePrefix+userID).Err()
}
