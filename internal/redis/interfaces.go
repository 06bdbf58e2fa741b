package redis

import (
	"context"
	"time"

	"github.com/StefanPetk0vic/Locus/internal/domain"
)

// LocationStoreInterface defines the geospatial index operations.
type LocationStoreInterface interface {
	Add(ctx context.Context, driverID string, at domain.Coordinate) error
	Nearby(ctx context.Context, at domain.Coordinate, radiusKm float64, limit int) ([]string, error)
	Remove(ctx context.Context, driverID string) error
}

// BatchStoreInterface defines the ephemeral dispatch batch operations.
type BatchStoreInterface interface {
	Save(ctx context.Context, rideID string, batches [][]string, ttl time.Duration) error
	Batches(ctx context.Context, rideID string) ([][]string, error)
	Index(ctx context.Context, rideID string) (int, error)
	SetIndex(ctx context.Context, rideID string, idx int, ttl time.Duration) error
	Delete(ctx context.Context, rideID string) error
}

// ThrottleStoreInterface defines per-key rate limiting.
type ThrottleStoreInterface interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

// PresenceStoreInterface defines the presence mirror operations.
type PresenceStoreInterface interface {
	MarkOnline(ctx context.Context, userID, room string) error
	MarkOffline(ctx context.Context, userID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ BatchStoreInterface    = (*BatchStore)(nil)
	_ ThrottleStoreInterface = (*ThrottleStore)(nil)
	_ PresenceStoreInterface = (*PresenceStore)(nil)
)
