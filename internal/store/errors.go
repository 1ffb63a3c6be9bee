package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrQuantityOverflow is returned by UpsertIncrement when the result would
	// exceed MaxQuantity. The record is left unchanged.
	ErrQuantityOverflow = errors.New("quantity overflow")

	// ErrUnavailable wraps every failure to reach the backend.
	ErrUnavailable = errors.New("storage unavailable")
)

// InsufficientError is returned by ConditionalDecrement when the stored
// quantity is lower than requested. The record is left unchanged.
type InsufficientError struct {
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient quantity: available %d", e.Available)
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
