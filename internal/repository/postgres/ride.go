package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/repository"
)

const rideColumns = `id, rider_id, driver_id, pickup_lat, pickup_lng, destination_lat, destination_lng, status, price, hold_ref, created_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RiderID,
		nullString(ride.DriverID),
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Destination.Lat,
		ride.Destination.Lng,
		ride.Status,
		ride.Price,
		nullString(ride.HoldRef),
		ride.CreatedAt,
	)

	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// GetByStatus retrieves rides in the given status, newest first.
func (r *RideRepository) GetByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = $1 ORDER BY created_at DESC LIMIT 100`
	return r.list(ctx, query, status)
}

// GetActiveForDriver retrieves the ride a driver is currently serving.
func (r *RideRepository) GetActiveForDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + `
		FROM rides
		WHERE driver_id = $1 AND status IN ('ACCEPTED', 'IN_PROGRESS')
		ORDER BY created_at DESC
		LIMIT 1
	`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// GetCompletedFor retrieves completed rides for a rider or a driver.
func (r *RideRepository) GetCompletedFor(ctx context.Context, role domain.Role, userID string) ([]*domain.Ride, error) {
	var column string
	switch role {
	case domain.RoleDriver:
		column = "driver_id"
	case domain.RoleRider:
		column = "rider_id"
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	query := `SELECT ` + rideColumns + ` FROM rides WHERE ` + column + ` = $1 AND status = $2 ORDER BY created_at DESC`
	return r.list(ctx, query, userID, domain.RideStatusCompleted)
}

// Transition applies a guarded status change in a single statement. The
// WHERE clause on status makes concurrent transitions from the same state
// mutually exclusive: only one UPDATE can match the row.
func (r *RideRepository) Transition(ctx context.Context, update repository.StatusUpdate) (*domain.Ride, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	from := make([]string, len(update.From))
	for i, s := range update.From {
		from[i] = string(s)
	}

	query := `
		UPDATE rides
		SET status = $1,
		    driver_id = CASE $1::text
		        WHEN 'ACCEPTED' THEN $2::text
		        WHEN 'CANCELLED' THEN NULL
		        ELSE driver_id
		    END,
		    updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
		RETURNING ` + rideColumns

	ride, err := scanRide(r.q.QueryRowContext(ctx, query,
		string(update.To),
		update.DriverID,
		update.RideID,
		pq.Array(from),
	))
	if err == nil {
		return ride, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// No row matched: tell a missing ride apart from a lost race.
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, update.RideID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrStatusConflict
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID sql.NullString
	var holdRef sql.NullString

	err := row.Scan(
		&ride.ID,
		&ride.RiderID,
		&driverID,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&ride.Destination.Lat,
		&ride.Destination.Lng,
		&ride.Status,
		&ride.Price,
		&holdRef,
		&ride.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		ride.DriverID = driverID.String
	}
	if holdRef.Valid {
		ride.HoldRef = holdRef.String
	}
	return &ride, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
