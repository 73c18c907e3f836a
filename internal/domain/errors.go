package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrPlayerNotFound = errors.New("player not found")

	ErrValidation        = errors.New("validation failed")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidRound      = errors.New("invalid round for category")
	ErrInvalidBetType    = errors.New("invalid bet type")
	ErrInvalidWinnerSlot = errors.New("invalid winner slot")
	ErrEmptySetScores    = errors.New("set scores must not be empty")
	ErrMatchClosed       = errors.New("match is no longer open for predictions")
	ErrBettingClosed     = errors.New("tournament betting is closed for this category")

	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
)

// ValidationError describes why an input was rejected. It matches
// ErrValidation and, when set, the more specific Kind.
type ValidationError struct {
	Field  string
	Reason string
	Kind   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return e.Kind != nil && target == e.Kind
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidKind builds a ValidationError that also matches kind.
func InvalidKind(kind error, field, reason string) error {
	return &ValidationError{Field: field, Reason: reason, Kind: kind}
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrMatchNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPlayerNotFound)
}

// IsValidationError reports whether err was caused by rejected input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidRound) ||
		errors.Is(err, ErrInvalidBetType) ||
		errors.Is(err, ErrInvalidWinnerSlot) ||
		errors.Is(err, ErrEmptySetScores)
}

// IsConflictError reports whether err rejects a write because the target is closed.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrMatchClosed) || errors.Is(err, ErrBettingClosed)
}
