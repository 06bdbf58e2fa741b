package repository

import "context"

// Transactor runs fn against ride and invoice repositories that share one
// transaction. The transaction commits when fn returns nil and rolls back
// otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(rides RideRepository, invoices InvoiceRepository) error) error
}
