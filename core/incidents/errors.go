package incidents

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for lookups of ids that do not exist.
	ErrNotFound = errors.New("introuvable")
	// ErrUnavailable is returned when stored bytes cannot be located at
	// the recorded location.
	ErrUnavailable = errors.New("stockage indisponible")
)

// ValidationError rejects a request over a user-correctable field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PersistenceError wraps a transaction or commit failure.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("échec de la persistance: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
