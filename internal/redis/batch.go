package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	batchesPrefix    = "ride:batches:"
	batchIndexPrefix = "ride:batch:index:"
)

// BatchStore holds the ephemeral dispatch batches of a ride.
type BatchStore struct {
	client *redis.Client
}

// NewBatchStore creates a new BatchStore.
func NewBatchStore(client *redis.Client) *BatchStore {
	return &BatchStore{client: client}
}

// Save stores the batches and resets the index to 0, both with the TTL.
func (s *BatchStore) Save(ctx context.Context, rideID string, batches [][]string, ttl time.Duration) error {
	data, err := json.Marshal(batches)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, batchesPrefix+rideID, data, ttl)
	pipe.Set(ctx, batchIndexPrefix+rideID, 0, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Batches returns the stored batches, or nil if none exist.
func (s *BatchStore) Batches(ctx context.Context, rideID string) ([][]string, error) {
	data, err := s.client.Get(ctx, batchesPrefix+rideID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var batches [][]string
	if err := json.Unmarshal(data, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// Index returns the current batch index. A missing key reads as 0.
func (s *BatchStore) Index(ctx context.Context, rideID string) (int, error) {
	idx, err := s.client.Get(ctx, batchIndexPrefix+rideID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return idx, err
}

// SetIndex stores the current batch index.
func (s *BatchStore) SetIndex(ctx context.Context, rideID string, idx int, ttl time.Duration) error {
	return s.client.Set(ctx, batchIndexPrefix+rideID, idx, ttl).Err()
}

// Delete removes all batch state for the ride.
func (s *BatchStore) Delete(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, batchesPrefix+rideID, batchIndexPrefix+rideID).Err()
}
