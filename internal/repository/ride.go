package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/StefanPetk0vic/Locus/internal/domain"
)

// StatusUpdate describes a guarded status change. The write succeeds only if
// the stored status is one of From.
type StatusUpdate struct {
	RideID   string
	From     []domain.RideStatus
	To       domain.RideStatus
	DriverID string // stored when To is ACCEPTED; the driver is cleared when To is CANCELLED
}

// Validate rejects an update whose From lists a status that cannot move to
// To, or that lists nothing.
func (u StatusUpdate) Validate() error {
	if len(u.From) == 0 {
		return fmt.Errorf("%w: no source status for %s", domain.ErrIllegalTransition, u.To)
	}
	legal := domain.PredecessorsOf(u.To)
	for _, from := range u.From {
		if !slices.Contains(legal, from) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, u.To)
		}
	}
	return nil
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	Create(ctx context.Context, ride *domain.Ride) error
	GetByID(ctx context.Context, id string) (*domain.Ride, error)
	GetByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error)
	GetActiveForDriver(ctx context.Context, driverID string) (*domain.Ride, error)
	GetCompletedFor(ctx context.Context, role domain.Role, userID string) ([]*domain.Ride, error)
	Transition(ctx context.Context, update StatusUpdate) (*domain.Ride, error)
}
