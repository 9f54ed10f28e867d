package design

import (
	"errors"
	"fmt"
	"strings"
)

// DesignSpecificationError reports a model specification that cannot be
// realized against the trial data: a missing or misdeclared predictor, an
// invalid coding declaration, or a rank-deficient design matrix.
type DesignSpecificationError struct {
	// Predictor names the offending predictor or term. Empty when the
	// violation concerns the matrix as a whole.
	Predictor string
	Reason    string
}

func (e *DesignSpecificationError) Error() string {
	if e.Predictor == "" {
		return fmt.Sprintf("design specification: %s", e.Reason)
	}
	return fmt.Sprintf("design specification: predictor %q: %s", e.Predictor, e.Reason)
}

// IsDesignSpecificationError checks if an error is a DesignSpecificationError
func IsDesignSpecificationError(err error) bool {
	var e *DesignSpecificationError
	return errors.As(err, &e)
}

// UnsupportedConditionError reports a condition that assigns a categorical
// predictor a level never present in the fitted design.
type UnsupportedConditionError struct {
	Predictor string
	Level     string
	Known     []string
}

func (e *UnsupportedConditionError) Error() string {
	return fmt.Sprintf("unsupported condition: predictor %q has no fitted level %q (fitted levels: %s)",
		e.Predictor, e.Level, strings.Join(e.Known, ", "))
}

// IsUnsupportedConditionError checks if an error is an UnsupportedConditionError
func IsUnsupportedConditionError(err error) bool {
	var e *UnsupportedConditionError
	return errors.As(err, &e)
}
