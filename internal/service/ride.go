package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/repository"
)

// PricingPolicy decides how a ride's price is set.
type PricingPolicy struct {
	Fares domain.FareModel
	// AllowOverride lets a positive caller-supplied price replace the fare.
	AllowOverride bool
}

// RideService drives rides through their lifecycle.
type RideService struct {
	rides         repository.RideRepository
	tx            repository.Transactor
	payments      PaymentOrchestrator
	dispatch      Dispatcher
	notifications *NotificationService
	publisher     Publisher
	pricing       PricingPolicy
	log           *slog.Logger
}

// NewRideService creates a new RideService.
func NewRideService(
	rides repository.RideRepository,
	tx repository.Transactor,
	payments PaymentOrchestrator,
	dispatch Dispatcher,
	notifications *NotificationService,
	publisher Publisher,
	pricing PricingPolicy,
	log *slog.Logger,
) *RideService {
	return &RideService{
		rides:         rides,
		tx:            tx,
		payments:      payments,
		dispatch:      dispatch,
		notifications: notifications,
		publisher:     publisher,
		pricing:       pricing,
		log:           log,
	}
}

// RequestRideInput contains the parameters for requesting a ride.
type RequestRideInput struct {
	RiderID       string
	Pickup        domain.Coordinate
	Destination   domain.Coordinate
	PriceOverride *float64 // optional
}

// RequestRide prices the ride, holds payment for it, persists it and starts
// dispatch. No ride exists if the hold is declined. The ride and its invoice
// are stored in one transaction; if that fails the hold is released.
func (s *RideService) RequestRide(ctx context.Context, in RequestRideInput) (*domain.Ride, error) {
	if err := validateRequest(in); err != nil {
		return nil, err
	}

	price := s.price(in)
	rideID := uuid.New().String()

	holdRef, err := s.payments.Authorize(ctx, in.RiderID, rideID, price)
	if err != nil {
		return nil, err
	}

	ride := &domain.Ride{
		ID:          rideID,
		RiderID:     in.RiderID,
		Pickup:      in.Pickup,
		Destination: in.Destination,
		Status:      domain.RideStatusRequested,
		Price:       price,
		HoldRef:     holdRef,
		CreatedAt:   time.Now().UTC(),
	}

	invoice, err := s.payments.AuthorizedInvoice(ride.ID, ride.RiderID, price, holdRef)
	if err != nil {
		s.payments.ReleaseHold(ctx, rideID, holdRef)
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(rides repository.RideRepository, invoices repository.InvoiceRepository) error {
		if err := rides.Create(ctx, ride); err != nil {
			return fmt.Errorf("create ride: %w", err)
		}
		if err := invoices.Save(ctx, invoice); err != nil {
			return fmt.Errorf("save invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log.Error("ride_persist_failed",
			"action", "request_ride",
			"ride_id", ride.ID,
			"error", err,
		)
		s.payments.ReleaseHold(ctx, rideID, holdRef)
		return nil, err
	}

	s.log.Info("ride_requested",
		"action", "request_ride",
		"ride_id", ride.ID,
		"rider_id", ride.RiderID,
		"price", ride.Price,
	)

	if err := s.dispatch.Start(ctx, ride); err != nil {
		s.log.Error("dispatch_start_failed",
			"action", "request_ride",
			"ride_id", ride.ID,
			"error", err,
		)
	}

	s.publisher.Publish(ctx, domain.TopicRideRequested, domain.NewRideEvent(ride))
	return ride, nil
}

// AcceptRide assigns a driver to a REQUESTED ride. Concurrent accepts are
// resolved by the store: exactly one wins.
func (s *RideService) AcceptRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != domain.RideStatusRequested {
		return nil, fmt.Errorf("%w: ride is %s", ErrInvalidStateTransition, ride.Status)
	}

	updated, err := s.transition(ctx, ride, domain.RideStatusAccepted, driverID)
	if err != nil {
		return nil, err
	}

	s.dispatch.Cancel(ctx, rideID)
	s.notifications.NotifyRideAccepted(updated)
	s.publisher.Publish(ctx, domain.TopicRideAccepted, domain.NewRideEvent(updated))

	s.log.Info("ride_accepted",
		"action", "accept_ride",
		"ride_id", rideID,
		"driver_id", driverID,
	)
	return updated, nil
}

// StartRide moves an ACCEPTED ride to IN_PROGRESS.
func (s *RideService) StartRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	ride, err := s.loadForDriver(ctx, rideID, driverID, domain.RideStatusAccepted)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, ride, domain.RideStatusInProgress, "")
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyRideStarted(updated)
	s.publisher.Publish(ctx, domain.TopicRideStarted, domain.NewRideEvent(updated))

	s.log.Info("ride_started",
		"action", "start_ride",
		"ride_id", rideID,
		"driver_id", driverID,
	)
	return updated, nil
}

// CompleteRide moves an IN_PROGRESS ride to COMPLETED and captures payment.
// A failed capture leaves the ride completed with a FAILED invoice.
func (s *RideService) CompleteRide(ctx context.Context, rideID, driverID string) (*domain.Ride, domain.InvoiceStatus, error) {
	ride, err := s.loadForDriver(ctx, rideID, driverID, domain.RideStatusInProgress)
	if err != nil {
		return nil, "", err
	}

	updated, err := s.transition(ctx, ride, domain.RideStatusCompleted, "")
	if err != nil {
		return nil, "", err
	}

	paymentStatus := domain.InvoiceStatusFailed
	invoice, err := s.payments.Capture(ctx, rideID)
	if invoice != nil {
		paymentStatus = invoice.Status
	}
	if err != nil {
		s.log.Error("ride_capture_failed",
			"action", "complete_ride",
			"ride_id", rideID,
			"error", err,
		)
	}

	s.notifications.NotifyRideCompleted(updated, paymentStatus)
	event := domain.NewRideEvent(updated)
	event.PaymentStatus = paymentStatus
	s.publisher.Publish(ctx, domain.TopicRideCompleted, event)

	s.log.Info("ride_completed",
		"action", "complete_ride",
		"ride_id", rideID,
		"driver_id", driverID,
		"payment_status", paymentStatus,
	)
	return updated, paymentStatus, nil
}

// CancelRide cancels a REQUESTED or ACCEPTED ride on behalf of its rider or
// assigned driver and releases the payment hold.
func (s *RideService) CancelRide(ctx context.Context, rideID, userID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsParticipant(userID) {
		return nil, ErrUnauthorized
	}
	if !domain.CanTransition(ride.Status, domain.RideStatusCancelled) {
		return nil, fmt.Errorf("%w: ride is %s", ErrInvalidStateTransition, ride.Status)
	}

	assignedDriver := ride.DriverID
	updated, err := s.transition(ctx, ride, domain.RideStatusCancelled, "")
	if err != nil {
		return nil, err
	}

	s.dispatch.Cancel(ctx, rideID)
	s.payments.Cancel(ctx, rideID)

	s.notifications.NotifyRideCancelled(updated, assignedDriver, userID)
	event := domain.NewRideEvent(updated)
	event.DriverID = assignedDriver
	event.CancelledBy = userID
	s.publisher.Publish(ctx, domain.TopicRideCancelled, event)

	s.log.Info("ride_cancelled",
		"action", "cancel_ride",
		"ride_id", rideID,
		"cancelled_by", userID,
	)
	return updated, nil
}

// GetRide returns a ride visible to one of its participants.
func (s *RideService) GetRide(ctx context.Context, rideID, userID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if userID != "" && !ride.IsParticipant(userID) && ride.Status != domain.RideStatusRequested {
		return nil, ErrUnauthorized
	}
	return ride, nil
}

// ListCompleted returns the completed rides the user took part in.
func (s *RideService) ListCompleted(ctx context.Context, role domain.Role, userID string) ([]*domain.Ride, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.rides.GetCompletedFor(ctx, role, userID)
}

// ListByStatus returns rides in the given status.
func (s *RideService) ListByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.rides.GetByStatus(ctx, status)
}

// Rebroadcast offers a still-REQUESTED ride to every connected driver. It is
// the manual fallback once the cascade is exhausted.
func (s *RideService) Rebroadcast(ctx context.Context, rideID, riderID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != riderID {
		return nil, ErrUnauthorized
	}
	if ride.Status != domain.RideStatusRequested {
		return nil, fmt.Errorf("%w: ride is %s", ErrInvalidStateTransition, ride.Status)
	}

	s.notifications.BroadcastRideRequested(ride)
	s.log.Info("ride_rebroadcast",
		"action", "rebroadcast",
		"ride_id", rideID,
	)
	return ride, nil
}

// loadForDriver loads a ride and checks it is in the expected status and
// assigned to driverID, in that order.
func (s *RideService) loadForDriver(ctx context.Context, rideID, driverID string, want domain.RideStatus) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != want {
		return nil, fmt.Errorf("%w: ride is %s", ErrInvalidStateTransition, ride.Status)
	}
	if ride.DriverID != driverID {
		return nil, ErrUnauthorized
	}
	return ride, nil
}

// transition writes ride.Status -> to guarded on the status just read. A
// lost race surfaces as ErrInvalidStateTransition.
func (s *RideService) transition(ctx context.Context, ride *domain.Ride, to domain.RideStatus, driverID string) (*domain.Ride, error) {
	if !domain.CanTransition(ride.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, ride.Status, to)
	}

	updated, err := s.rides.Transition(ctx, repository.StatusUpdate{
		RideID:   ride.ID,
		From:     []domain.RideStatus{ride.Status},
		To:       to,
		DriverID: driverID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: ride %s changed concurrently", ErrInvalidStateTransition, ride.ID)
		}
		return nil, err
	}
	return updated, nil
}

func (s *RideService) price(in RequestRideInput) float64 {
	fare := s.pricing.Fares.Price(in.Pickup, in.Destination)
	if in.PriceOverride == nil {
		return fare
	}

	override := *in.PriceOverride
	if s.pricing.AllowOverride && override > 0 {
		return override
	}

	s.log.Warn("price_override_ignored",
		"action", "request_ride",
		"rider_id", in.RiderID,
		"override", override,
		"fare", fare,
	)
	return fare
}

func validateRequest(in RequestRideInput) error {
	if in.RiderID == "" {
		return ErrInvalidRiderID
	}
	if !in.Pickup.Valid() {
		return ErrInvalidPickupLocation
	}
	if !in.Destination.Valid() {
		return ErrInvalidDestinationLocation
	}
	return nil
}
