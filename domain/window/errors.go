package window

import (
	"errors"
	"fmt"
)

// EmptyWindowError reports a time window that selects no data: a timepoint
// range outside the fitted epoch, an inverted range, or an empty channel
// set.
type EmptyWindowError struct {
	Window string
	Start  int
	End    int
	Reason string
}

func (e *EmptyWindowError) Error() string {
	return fmt.Sprintf("empty window %q [%d, %d]: %s", e.Window, e.Start, e.End, e.Reason)
}

// IsEmptyWindowError checks if an error is an EmptyWindowError
func IsEmptyWindowError(err error) bool {
	var e *EmptyWindowError
	return errors.As(err, &e)
}

// UndefinedContrastError reports a contrast that cannot be resolved against
// the fitted model: a weight on a term the model does not contain, or a
// contrast with no definition at all.
type UndefinedContrastError struct {
	Contrast string
	// Term names the unresolvable term. Empty when the contrast itself is
	// malformed.
	Term   string
	Reason string
}

func (e *UndefinedContrastError) Error() string {
	if e.Term == "" {
		return fmt.Sprintf("undefined contrast %q: %s", e.Contrast, e.Reason)
	}
	return fmt.Sprintf("undefined contrast %q: term %q: %s", e.Contrast, e.Term, e.Reason)
}

// IsUndefinedContrastError checks if an error is an UndefinedContrastError
func IsUndefinedContrastError(err error) bool {
	var e *UndefinedContrastError
	return errors.As(err, &e)
}
