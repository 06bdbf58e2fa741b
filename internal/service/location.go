package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/redis"
	"github.com/StefanPetk0vic/Locus/internal/repository"
)

// relayWindow is the minimum spacing between two position relays of one driver.
const relayWindow = 2 * time.Second

// LocationService tracks driver positions.
type LocationService struct {
	locations     redis.LocationStoreInterface
	throttle      redis.ThrottleStoreInterface
	rides         repository.RideRepository
	notifications *NotificationService
	log           *slog.Logger
}

// NewLocationService creates a new LocationService.
func NewLocationService(
	locations redis.LocationStoreInterface,
	throttle redis.ThrottleStoreInterface,
	rides repository.RideRepository,
	notifications *NotificationService,
	log *slog.Logger,
) *LocationService {
	return &LocationService{
		locations:     locations,
		throttle:      throttle,
		rides:         rides,
		notifications: notifications,
		log:           log,
	}
}

// UpdateLocation records a driver's position. An idle driver is put in the
// geo index and becomes dispatchable; a driver serving a ride is kept out of
// it and the position is relayed to the rider at most once per relayWindow.
func (s *LocationService) UpdateLocation(ctx context.Context, driverID string, at domain.Coordinate) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	if !at.Valid() {
		return ErrInvalidLocation
	}

	ride, err := s.rides.GetActiveForDriver(ctx, driverID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if ride == nil {
		return s.locations.Add(ctx, driverID, at)
	}

	if err := s.locations.Remove(ctx, driverID); err != nil {
		return err
	}

	allowed, err := s.throttle.Allow(ctx, relayKey(driverID), relayWindow)
	if err != nil {
		s.log.Warn("location_throttle_failed",
			"action", "update_location",
			"driver_id", driverID,
			"error", err,
		)
		return nil
	}
	if allowed {
		s.notifications.RelayDriverLocation(ride, at)
	}
	return nil
}

// GoOffline removes the driver from the geo index and clears the relay
// throttle, so the first position after reconnecting reaches the rider.
func (s *LocationService) GoOffline(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	if err := s.locations.Remove(ctx, driverID); err != nil {
		return err
	}
	if err := s.throttle.Reset(ctx, relayKey(driverID)); err != nil {
		s.log.Warn("location_throttle_reset_failed",
			"action", "go_offline",
			"driver_id", driverID,
			"error", err,
		)
	}
	return nil
}

func relayKey(driverID string) string {
	return "relay:" + driverID
}
