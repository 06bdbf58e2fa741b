package domain

import "time"

// Lifecycle topics published to the event broker and pushed to clients.
const (
	TopicRideRequested = "ride.requested"
	TopicRideAccepted  = "ride.accepted"
	TopicRideStarted   = "ride.started"
	TopicRideCompleted = "ride.completed"
	TopicRideCancelled = "ride.cancelled"
)

// RideEvent is the payload of every lifecycle topic.
type RideEvent struct {
	RideID        string        `json:"ride_id"`
	RiderID       string        `json:"rider_id"`
	DriverID      string        `json:"driver_id,omitempty"`
	Status        RideStatus    `json:"status"`
	Price         float64       `json:"price"`
	PaymentStatus InvoiceStatus `json:"payment_status,omitempty"`
	CancelledBy   string        `json:"cancelled_by,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// NewRideEvent snapshots a ride into an event payload.
func NewRideEvent(r *Ride) RideEvent {
	return RideEvent{
		RideID:     r.ID,
		RiderID:    r.RiderID,
		DriverID:   r.DriverID,
		Status:     r.Status,
		Price:      r.Price,
		OccurredAt: time.Now().UTC(),
	}
}
