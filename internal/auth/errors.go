package auth

import "errors"

var (
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: resource conflict")
	ErrUnauthenticated = errors.New("auth: authentication required")
	ErrForbidden       = errors.New("auth: forbidden")
)
