package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/repository"
)

const invoiceColumns = `id, ride_id, payer_id, amount, currency, hold_ref, status, created_at, paid_at`

// InvoiceRepository is a PostgreSQL implementation of repository.InvoiceRepository.
type InvoiceRepository struct {
	q Querier
}

// NewInvoiceRepository creates a new PostgreSQL invoice repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{q: db}
}

// NewInvoiceRepositoryWithTx creates an invoice repository using a transaction.
func NewInvoiceRepositoryWithTx(tx *sql.Tx) *InvoiceRepository {
	return &InvoiceRepository{q: tx}
}

// Save inserts an invoice or updates its mutable columns.
func (r *InvoiceRepository) Save(ctx context.Context, invoice *domain.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET hold_ref = EXCLUDED.hold_ref,
		    status = EXCLUDED.status,
		    paid_at = EXCLUDED.paid_at
	`

	var paidAt sql.NullTime
	if invoice.PaidAt != nil {
		paidAt = sql.NullTime{Time: *invoice.PaidAt, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		invoice.ID,
		invoice.RideID,
		invoice.PayerID,
		invoice.Amount,
		invoice.Currency,
		nullString(invoice.HoldRef),
		invoice.Status,
		invoice.CreatedAt,
		paidAt,
	)
	return err
}

// GetByRideID retrieves the invoice of a ride.
func (r *InvoiceRepository) GetByRideID(ctx context.Context, rideID string) (*domain.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE ride_id = $1`, rideID)
}

// GetByHoldRef retrieves the invoice carrying a gateway hold reference.
func (r *InvoiceRepository) GetByHoldRef(ctx context.Context, holdRef string) (*domain.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE hold_ref = $1`, holdRef)
}

// ListByPayer retrieves a payer's invoices, newest first.
func (r *InvoiceRepository) ListByPayer(ctx context.Context, payerID string) ([]*domain.Invoice, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE payer_id = $1 ORDER BY created_at DESC`, payerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*domain.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// IsEventProcessed reports whether a webhook event id is in the ledger.
func (r *InvoiceRepository) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID).Scan(&exists)
	return exists, err
}

// MarkEventProcessed records a webhook event id in the ledger.
func (r *InvoiceRepository) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, type, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	return err
}

func (r *InvoiceRepository) getOne(ctx context.Context, query string, arg string) (*domain.Invoice, error) {
	invoice, err := scanInvoice(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var holdRef sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(
		&invoice.ID,
		&invoice.RideID,
		&invoice.PayerID,
		&invoice.Amount,
		&invoice.Currency,
		&holdRef,
		&invoice.Status,
		&invoice.CreatedAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	if holdRef.Valid {
		invoice.HoldRef = holdRef.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		invoice.PaidAt = &t
	}
	return &invoice, nil
}
