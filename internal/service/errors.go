package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStateTransition is returned when a ride or invoice is not in a
	// state that allows the requested operation.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrUnauthorized is returned when the caller is not a participant allowed
	// to perform the operation.
	ErrUnauthorized = errors.New("caller not allowed to perform this operation")

	// ErrPaymentDeclined is returned when a hold cannot be placed.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrNoPaymentMethod is returned when the rider has no chargeable instrument.
	ErrNoPaymentMethod = fmt.Errorf("%w: no payment method on file", ErrPaymentDeclined)

	// ErrGateway is returned when the payment gateway cannot be reached or
	// answers with an unexpected error.
	ErrGateway = errors.New("payment gateway error")

	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrNoHold is returned when a capture is attempted without a hold.
	ErrNoHold = errors.New("no payment hold for ride")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidUserID is returned when user ID is empty.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = errors.New("invalid pickup location")

	// ErrInvalidDestinationLocation is returned when destination coordinates are invalid.
	ErrInvalidDestinationLocation = errors.New("invalid destination location")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidPaymentAmount is returned when payment amount is invalid.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidPaymentMethod is returned when a payment method reference is empty.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidRole is returned when a role filter is unknown.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidStatus is returned when a status filter is unknown.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNotRider is returned when a rider-only operation is called for another role.
	ErrNotRider = errors.New("account is not a rider")
)
