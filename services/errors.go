package services

import "errors"

var (
	// ErrNotFound: a referenced user, point, message or achievement does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation: input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden: caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict: a unique business key is already taken.
	ErrConflict = errors.New("already exists")
)
