package pantry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record has the requested ID
var ErrNotFound = errors.New("record not found")

// PersistenceError wraps a failure of the underlying storage medium
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s records: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
