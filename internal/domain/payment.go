package domain

import (
	"errors"
	"time"
)

// InvoiceStatus represents the current status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "PENDING"
	InvoiceStatusAuthorized InvoiceStatus = "AUTHORIZED"
	InvoiceStatusPaid       InvoiceStatus = "PAID"
	InvoiceStatusFailed     InvoiceStatus = "FAILED"
	InvoiceStatusRefunded   InvoiceStatus = "REFUNDED"
	InvoiceStatusCancelled  InvoiceStatus = "CANCELLED"
)

// ErrInvoiceTransition is returned when an invoice cannot move to the requested status.
var ErrInvoiceTransition = errors.New("illegal invoice status transition")

// Terminal reports whether the invoice can no longer change. FAILED is not
// terminal: a capture can be retried and a later settlement still lands.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

// Invoice is the payment record for a single ride.
type Invoice struct {
	ID        string
	RideID    string
	PayerID   string
	Amount    float64
	Currency  string
	HoldRef   string
	Status    InvoiceStatus
	CreatedAt time.Time
	PaidAt    *time.Time
}

// MarkAuthorized records a successful hold.
func (i *Invoice) MarkAuthorized(holdRef string) error {
	if i.Status == InvoiceStatusAuthorized {
		return nil
	}
	if i.Status != InvoiceStatusPending {
		return ErrInvoiceTransition
	}
	i.HoldRef = holdRef
	i.Status = InvoiceStatusAuthorized
	return nil
}

// MarkPaid records a settled capture. Calling it on a paid invoice is a no-op.
func (i *Invoice) MarkPaid(at time.Time) error {
	switch i.Status {
	case InvoiceStatusPaid:
		return nil
	case InvoiceStatusPending, InvoiceStatusAuthorized, InvoiceStatusFailed:
		i.Status = InvoiceStatusPaid
		i.PaidAt = &at
		return nil
	}
	return ErrInvoiceTransition
}

// MarkFailed moves a non-settled invoice to FAILED.
func (i *Invoice) MarkFailed() error {
	return i.sideways(InvoiceStatusFailed)
}

// MarkCancelled moves a non-settled invoice to CANCELLED.
func (i *Invoice) MarkCancelled() error {
	return i.sideways(InvoiceStatusCancelled)
}

// MarkRefunded moves a paid invoice to REFUNDED.
func (i *Invoice) MarkRefunded() error {
	switch i.Status {
	case InvoiceStatusRefunded:
		return nil
	case InvoiceStatusPaid:
		i.Status = InvoiceStatusRefunded
		return nil
	}
	return ErrInvoiceTransition
}

func (i *Invoice) sideways(to InvoiceStatus) error {
	if i.Status == to {
		return nil
	}
	switch i.Status {
	case InvoiceStatusPending, InvoiceStatusAuthorized, InvoiceStatusFailed:
	default:
		return ErrInvoiceTransition
	}
	i.Status = to
	return nil
}

// GatewayStatus is the normalized outcome of a payment gateway call.
type GatewayStatus string

const (
	GatewayStatusHeld      GatewayStatus = "held"
	GatewayStatusSettled   GatewayStatus = "settled"
	GatewayStatusCancelled GatewayStatus = "cancelled"
	GatewayStatusPending   GatewayStatus = "pending"
	GatewayStatusFailed    GatewayStatus = "failed"
)

// GatewayResult is returned by authorize, capture and cancel calls.
type GatewayResult struct {
	HoldRef string
	Status  GatewayStatus
}

// GatewayEventType classifies verified webhook events.
type GatewayEventType string

const (
	GatewayEventPaymentSucceeded GatewayEventType = "payment_intent.succeeded"
	GatewayEventPaymentFailed    GatewayEventType = "payment_intent.payment_failed"
	GatewayEventPaymentCancelled GatewayEventType = "payment_intent.canceled"
	GatewayEventChargeRefunded   GatewayEventType = "charge.refunded"
)

// CardSummary describes a saved card without exposing the instrument itself.
type CardSummary struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// GatewayEvent is a verified webhook delivery.
type GatewayEvent struct {
	ID      string
	Type    GatewayEventType
	HoldRef string
}

// ProcessedEvent is a ledger row for an applied webhook event.
type ProcessedEvent struct {
	EventID     string
	Type        string
	ProcessedAt time.Time
}
