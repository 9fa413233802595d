package drive

import (
	"errors"
	"fmt"

	userstore "github.com/dalemusser/stratadrive/internal/app/store/users"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"go.mongodb.org/mongo-driver/mongo"
)

// Error kinds returned by the drive. Wrap-aware: compare with errors.Is.
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrNotFound            = errors.New("not found")
	ErrQuotaExceeded       = errors.New("storage quota exceeded")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrCircularReference   = errors.New("folder cannot be moved into itself or one of its subfolders")
	ErrNotInBin            = errors.New("item is not in the bin")
	ErrAlreadyDeleted      = errors.New("item is already in the bin")
	ErrValidation          = errors.New("invalid input")

	// Specific misses; all satisfy errors.Is(err, ErrNotFound).
	ErrFolderNotFound = fmt.Errorf("folder %w", ErrNotFound)
	ErrParentNotFound = fmt.Errorf("parent folder %w", ErrNotFound)
	ErrFileNotFound   = fmt.Errorf("file %w", ErrNotFound)
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// miss translates a store lookup miss into the given not-found kind.
func miss(err, kind error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return kind
	}
	return err
}

// resultLabel buckets an operation's outcome for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrInsufficientCredits), errors.Is(err, userstore.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrCircularReference):
		return "circular_reference"
	case errors.Is(err, ErrNotInBin), errors.Is(err, ErrAlreadyDeleted):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, txn.ErrUnsupported):
		return "unsupported"
	default:
		return "error"
	}
}
