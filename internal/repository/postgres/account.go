package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/repository"
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	q Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{q: db}
}

// GetByID retrieves an account and fills the payload matching its role.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, email, name, role, license_plate, verified, ride_count,
		       payment_customer, payment_method_ref, created_at
		FROM accounts
		WHERE id = $1
	`

	var (
		account       domain.Account
		licensePlate  sql.NullString
		verified      bool
		rideCount     int
		customer      sql.NullString
		paymentMethod sql.NullString
	)

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.Role,
		&licensePlate,
		&verified,
		&rideCount,
		&customer,
		&paymentMethod,
		&account.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	switch account.Role {
	case domain.RoleDriver:
		account.Driver = &domain.DriverProfile{
			LicensePlate: licensePlate.String,
			Verified:     verified,
		}
	case domain.RoleRider:
		account.Rider = &domain.RiderProfile{
			RideCount:        rideCount,
			PaymentCustomer:  customer.String,
			PaymentMethodRef: paymentMethod.String,
		}
	default:
		return nil, fmt.Errorf("account %s has unknown role %q", account.ID, account.Role)
	}

	return &account, nil
}

// UpdateRiderPayment stores the rider's gateway references. Empty strings
// clear them.
func (r *AccountRepository) UpdateRiderPayment(ctx context.Context, riderID, customerRef, methodRef string) error {
	query := `
		UPDATE accounts
		SET payment_customer = $1, payment_method_ref = $2
		WHERE id = $3 AND role = 'RIDER'
	`

	res, err := r.q.ExecContext(ctx, query, nullString(customerRef), nullString(methodRef), riderID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
