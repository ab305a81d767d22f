package core

import (
	"errors"

	"gwi.com/shot-suggestor/internal/store"
)

var (
	ErrNotFound           = store.ErrNotFound
	ErrUserExists         = store.ErrUserExists
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrShotNotFound       = errors.New("shot not found in shot set")
	ErrMissingReference   = errors.New("conditioning requested without a reference image")
)

// ValidationError carries a message that is safe to show to the user as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }
