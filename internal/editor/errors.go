package editor

import (
	"errors"

	"linkpage/api/internal/validate"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNoProfile       = errors.New("no profile")
	ErrNotFound        = errors.New("not found")
	ErrThrottled       = errors.New("throttled")
	ErrSaveFailed      = errors.New("save failed")
	ErrSaveInProgress  = errors.New("save already in progress")
	ErrNotLoaded       = errors.New("editor not loaded")
)

// ValidationError is returned by mutators for rejected input.
type ValidationError = validate.FieldError
