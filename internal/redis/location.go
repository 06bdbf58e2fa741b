package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/StefanPetk0vic/Locus/internal/domain"
)

const driverLocationKey = "drivers:locations"

// LocationStore keeps the positions of online drivers in a Redis GEO set.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// Add records or moves a driver's position using GEOADD.
func (s *LocationStore) Add(ctx context.Context, driverID string, at domain.Coordinate) error {
	return s.client.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: at.Lng,
		Latitude:  at.Lat,
	}).Err()
}

// Nearby returns up to limit driver IDs within radiusKm of the point,
// nearest first.
func (s *LocationStore) Nearby(ctx context.Context, at domain.Coordinate, radiusKm float64, limit int) ([]string, error) {
	results, err := s.client.GeoRadius(ctx, driverLocationKey, at.Lng, at.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Count:  limit,
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Name)
	}
	return ids, nil
}

// Remove drops a driver from the geo index.
func (s *LocationStore) Remove(ctx context.Context, driverID string) error {
	return s.client.ZRem(ctx, driverLocationKey, driverID).Err()
}
