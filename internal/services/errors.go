package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/voicetory/apiserver/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")

	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidQuantity      = errors.New("quantity must be between 1 and 2147483647")
	ErrQuantityLimit        = errors.New("stock would exceed the maximum quantity of 2147483647")
	ErrInvalidName          = errors.New("product name is required")

	ErrDuplicateEntity    = errors.New("username or email already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrMissingFields      = errors.New("username, email, and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeactivated        = errors.New("account is deactivated")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionInvalid     = errors.New("invalid session")

	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrNoValidRows        = errors.New("no valid data found in spreadsheet")
	ErrInvalidSpreadsheet = errors.New("invalid spreadsheet")
)

// ParseError reports command text that matches none of the supported forms.
type ParseError struct {
	Message  string
	Examples []string
}

func (e *ParseError) Error() string {
	return e.Message
}

// InsufficientQuantityError carries the stock that was available when a
// sell or delete asked for more.
type InsufficientQuantityError struct {
	Product   string
	Available int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity of %s. Available: %d", e.Product, e.Available)
}

func (e *InsufficientQuantityError) Is(target error) bool {
	return target == ErrInsufficientQuantity
}

// MissingColumnsError rejects a whole import batch.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// SpreadsheetError reports an upload that could not be decoded.
type SpreadsheetError struct {
	Err error
}

func (e *SpreadsheetError) Error() string {
	return e.Err.Error()
}

func (e *SpreadsheetError) Unwrap() error {
	return e.Err
}

func (e *SpreadsheetError) Is(target error) bool {
	return target == ErrInvalidSpreadsheet
}

// storageError converts a backend failure into the service taxonomy. notFound
// replaces store.ErrNotFound; nil keeps it unchanged.
func storageError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	case errors.Is(err, store.ErrNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrDuplicateEntity
	case errors.Is(err, store.ErrQuantityOverflow):
		return ErrQuantityLimit
	default:
		return err
	}
}
