package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrEstimateMissing = fmt.Errorf("%w: coefficient estimate", ErrNotFound)
	ErrChannelNotFound = fmt.Errorf("%w: channel", ErrNotFound)
	ErrTrialNotFound   = fmt.Errorf("%w: trial", ErrNotFound)

	// Data sufficiency errors
	ErrInsufficientData = errors.New("insufficient data for fit")
	ErrEmptyTable       = errors.New("trial table is empty")
)

// Error constructors with context
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

func NewEstimateMissingError(timepoint int, channel string) error {
	return fmt.Errorf("%w: timepoint %d, channel %s", ErrEstimateMissing, timepoint, channel)
}

func NewChannelNotFoundError(channel string) error {
	return fmt.Errorf("%w: %s", ErrChannelNotFound, channel)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInsufficientDataError(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}
