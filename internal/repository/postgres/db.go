package postgres

import (
	"context"
	"database/sql"

	"github.com/StefanPetk0vic/Locus/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

var (
	_ repository.RideRepository    = (*RideRepository)(nil)
	_ repository.InvoiceRepository = (*InvoiceRepository)(nil)
	_ repository.AccountRepository = (*AccountRepository)(nil)
	_ repository.Transactor        = (*Transactor)(nil)
)
