package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThrottleStore rate-limits per-key actions with SETNX markers.
type ThrottleStore struct {
	client *redis.Client
}

// NewThrottleStore creates a new ThrottleStore.
func NewThrottleStore(client *redis.Client) *ThrottleStore {
	return &ThrottleStore{client: client}
}

// Allow returns true if no marker for the key exists and sets one for the
// window. Subsequent calls within the window return false.
func (s *ThrottleStore) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, fmt.Sprintf("throttle:%s", key), "1", window).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Reset clears the marker for the key.
func (s *ThrottleStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, fmt.Sprintf("throttle:%s", key)).Err()
}
