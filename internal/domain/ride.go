package domain

import (
	"errors"
	"time"
)

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested  RideStatus = "REQUESTED"
	RideStatusAccepted   RideStatus = "ACCEPTED"
	RideStatusInProgress RideStatus = "IN_PROGRESS"
	RideStatusCompleted  RideStatus = "COMPLETED"
	RideStatusCancelled  RideStatus = "CANCELLED"
)

// ErrIllegalTransition is returned when a status change is not an edge of the ride graph.
var ErrIllegalTransition = errors.New("illegal ride status transition")

// rideTransitions is the complete set of legal edges.
var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested:  {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted},
}

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusRequested, RideStatusAccepted, RideStatusInProgress,
		RideStatusCompleted, RideStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s RideStatus) Terminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// HasDriver reports whether a ride in status s carries a driver.
func (s RideStatus) HasDriver() bool {
	return s == RideStatusAccepted || s == RideStatusInProgress || s == RideStatusCompleted
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to RideStatus) bool {
	for _, next := range rideTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PredecessorsOf returns every status that may move to s.
func PredecessorsOf(s RideStatus) []RideStatus {
	var from []RideStatus
	for _, candidate := range []RideStatus{RideStatusRequested, RideStatusAccepted, RideStatusInProgress} {
		if CanTransition(candidate, s) {
			from = append(from, candidate)
		}
	}
	return from
}

// Ride represents a ride request and its lifecycle.
type Ride struct {
	ID          string
	RiderID     string
	DriverID    string // empty until a driver accepts
	Pickup      Coordinate
	Destination Coordinate
	Status      RideStatus
	Price       float64
	HoldRef     string // gateway hold reference, empty if none
	CreatedAt   time.Time
}

// IsParticipant reports whether userID is the rider or the assigned driver.
func (r *Ride) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return r.RiderID == userID || (r.DriverID != "" && r.DriverID == userID)
}

// Apply moves the ride to status to, keeping the driver invariant.
// driverID is only read when moving to ACCEPTED.
func (r *Ride) Apply(to RideStatus, driverID string) error {
	if !CanTransition(r.Status, to) {
		return ErrIllegalTransition
	}
	switch to {
	case RideStatusAccepted:
		if driverID == "" {
			return ErrIllegalTransition
		}
		r.DriverID = driverID
	case RideStatusCancelled:
		r.DriverID = ""
	}
	r.Status = to
	return nil
}

// Consistent reports whether the driver field agrees with the status.
func (r *Ride) Consistent() bool {
	return (r.DriverID != "") == r.Status.HasDriver()
}
