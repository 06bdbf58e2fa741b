package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/StefanPetk0vic/Locus/internal/domain"
)

// Rooms every connected client joins according to its role.
const (
	RoomDrivers = "drivers"
	RoomRiders  = "riders"
)

// Push events that are not lifecycle topics.
const (
	EventDriverLocation = "driver.location"
	EventRideUnmatched  = "ride.unmatched"
)

// Notifier pushes real-time messages to connected users.
type Notifier interface {
	// SendToUser delivers to a single user and reports whether the user was
	// connected.
	SendToUser(userID, event string, payload any) bool
	BroadcastToRoom(room, event string, payload any)
	IsConnected(userID string) bool
}

// Publisher emits lifecycle events to the event broker. Failures are logged
// by the implementation and never reach the caller.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// RideOffer is the payload pushed to drivers for a ride they may accept.
type RideOffer struct {
	RideID      string            `json:"ride_id"`
	RiderID     string            `json:"rider_id"`
	Pickup      domain.Coordinate `json:"pickup"`
	Destination domain.Coordinate `json:"destination"`
	Price       float64           `json:"price"`
	Batch       int               `json:"batch"`
}

// LocationRelay is the payload pushed to a rider while their driver moves.
type LocationRelay struct {
	RideID   string            `json:"ride_id"`
	DriverID string            `json:"driver_id"`
	Location domain.Coordinate `json:"location"`
	At       time.Time         `json:"at"`
}

// NotificationService turns lifecycle changes into real-time pushes.
type NotificationService struct {
	notifier Notifier
	log      *slog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(notifier Notifier, log *slog.Logger) *NotificationService {
	return &NotificationService{notifier: notifier, log: log}
}

// OfferRide pushes a ride offer to one driver. Returns false if the driver
// is not connected.
func (s *NotificationService) OfferRide(ride *domain.Ride, driverID string, batch int) bool {
	return s.notifier.SendToUser(driverID, domain.TopicRideRequested, RideOffer{
		RideID:      ride.ID,
		RiderID:     ride.RiderID,
		Pickup:      ride.Pickup,
		Destination: ride.Destination,
		Price:       ride.Price,
		Batch:       batch,
	})
}

// BroadcastRideRequested offers a ride to every connected driver.
func (s *NotificationService) BroadcastRideRequested(ride *domain.Ride) {
	s.notifier.BroadcastToRoom(RoomDrivers, domain.TopicRideRequested, RideOffer{
		RideID:      ride.ID,
		RiderID:     ride.RiderID,
		Pickup:      ride.Pickup,
		Destination: ride.Destination,
		Price:       ride.Price,
		Batch:       -1,
	})
}

// NotifyRideAccepted tells the rider a driver took the ride.
func (s *NotificationService) NotifyRideAccepted(ride *domain.Ride) {
	s.sendEvent(ride.RiderID, domain.TopicRideAccepted, domain.NewRideEvent(ride))
}

// NotifyRideStarted tells the rider the ride is underway.
func (s *NotificationService) NotifyRideStarted(ride *domain.Ride) {
	s.sendEvent(ride.RiderID, domain.TopicRideStarted, domain.NewRideEvent(ride))
}

// NotifyRideCompleted tells the rider the ride ended and how payment went.
func (s *NotificationService) NotifyRideCompleted(ride *domain.Ride, payment domain.InvoiceStatus) {
	event := domain.NewRideEvent(ride)
	event.PaymentStatus = payment
	s.sendEvent(ride.RiderID, domain.TopicRideCompleted, event)
}

// NotifyRideCancelled tells the other party that the ride was cancelled.
// driverID is the driver assigned before cancellation, if any.
func (s *NotificationService) NotifyRideCancelled(ride *domain.Ride, driverID, cancelledBy string) {
	event := domain.NewRideEvent(ride)
	event.DriverID = driverID
	event.CancelledBy = cancelledBy

	recipient := ride.RiderID
	if cancelledBy == ride.RiderID {
		recipient = driverID
	}
	if recipient == "" {
		return
	}
	s.sendEvent(recipient, domain.TopicRideCancelled, event)
}

// NotifyRideUnmatched tells the rider no driver took the ride.
func (s *NotificationService) NotifyRideUnmatched(ride *domain.Ride) {
	s.sendEvent(ride.RiderID, EventRideUnmatched, domain.NewRideEvent(ride))
}

// RelayDriverLocation forwards a driver's position to the rider of the ride.
func (s *NotificationService) RelayDriverLocation(ride *domain.Ride, at domain.Coordinate) {
	s.notifier.SendToUser(ride.RiderID, EventDriverLocation, LocationRelay{
		RideID:   ride.ID,
		DriverID: ride.DriverID,
		Location: at,
		At:       time.Now().UTC(),
	})
}

func (s *NotificationService) sendEvent(userID, event string, payload any) {
	if !s.notifier.SendToUser(userID, event, payload) {
		s.log.Debug("notification_skipped",
			"action", "notify",
			"event", event,
			"user_id", userID,
			"reason", "not connected",
		)
	}
}
