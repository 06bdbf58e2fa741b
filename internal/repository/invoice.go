package repository

import (
	"context"

	"github.com/StefanPetk0vic/Locus/internal/domain"
)

// InvoiceRepository defines the persistence operations for invoices and the
// processed webhook event ledger.
type InvoiceRepository interface {
	// Save inserts or updates an invoice.
	Save(ctx context.Context, invoice *domain.Invoice) error

	// GetByRideID retrieves the invoice of a ride.
	GetByRideID(ctx context.Context, rideID string) (*domain.Invoice, error)

	// GetByHoldRef retrieves the invoice holding the given gateway reference.
	GetByHoldRef(ctx context.Context, holdRef string) (*domain.Invoice, error)

	// ListByPayer retrieves a payer's invoices, newest first.
	ListByPayer(ctx context.Context, payerID string) ([]*domain.Invoice, error)

	// IsEventProcessed reports whether a webhook event was already applied.
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)

	// MarkEventProcessed records a webhook event in the ledger. Recording the
	// same event twice is not an error.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}
