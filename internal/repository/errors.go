package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStatusConflict is returned when a conditional status write finds the
	// row in a status other than the expected ones.
	ErrStatusConflict = errors.New("status precondition failed")
)
