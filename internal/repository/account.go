package repository

import (
	"context"

	"github.com/StefanPetk0vic/Locus/internal/domain"
)

// AccountRepository reads accounts owned by the user service.
type AccountRepository interface {
	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// UpdateRiderPayment stores the rider's gateway customer and payment method.
	UpdateRiderPayment(ctx context.Context, riderID, customerRef, methodRef string) error
}
