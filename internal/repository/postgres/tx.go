package postgres

import (
	"context"
	"database/sql"

	"github.com/StefanPetk0vic/Locus/internal/repository"
)

// Transactor is a PostgreSQL implementation of repository.Transactor.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a new PostgreSQL transactor.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn with transaction-scoped repositories and commits if fn
// succeeds.
func (t *Transactor) WithinTx(ctx context.Context, fn func(rides repository.RideRepository, invoices repository.InvoiceRepository) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(NewRideRepositoryWithTx(tx), NewInvoiceRepositoryWithTx(tx)); err != nil {
		return err
	}

	return tx.Commit()
}
