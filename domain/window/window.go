// Package window declares analyst-chosen time windows and contrasts, and
// the statistics computed over them. A window-level test asks whether a
// contrast's mean amplitude inside a timepoint range differs from zero,
// with every test of one analysis corrected as a single family.
package window

import (
	"fmt"
)

// TimeWindow selects an inclusive timepoint range on an explicit channel
// set. Ranges are declared in sample indices; mapping from milliseconds to
// indices is the caller's concern.
type TimeWindow struct {
	Label string `json:"label"`
	// Start and End are inclusive timepoint indices.
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Channels []string `json:"channels"`
}

// Validate checks the window against the fitted epoch geometry.
func (w TimeWindow) Validate(timepoints int, channels []string) error {
	if w.Label == "" {
		return &EmptyWindowError{Window: w.Label, Start: w.Start, End: w.End, Reason: "window label is required"}
	}
	if w.Start < 0 || w.End >= timepoints {
		return &EmptyWindowError{
			Window: w.Label, Start: w.Start, End: w.End,
			Reason: fmt.Sprintf("range outside fitted epoch 0..%d", timepoints-1),
		}
	}
	if w.End < w.Start {
		return &EmptyWindowError{Window: w.Label, Start: w.Start, End: w.End, Reason: "end precedes start"}
	}
	if len(w.Channels) == 0 {
		return &EmptyWindowError{Window: w.Label, Start: w.Start, End: w.End, Reason: "channel set is empty"}
	}
	known := make(map[string]bool, len(channels))
	for _, ch := range channels {
		known[ch] = true
	}
	for _, ch := range w.Channels {
		if !known[ch] {
			return &EmptyWindowError{
				Window: w.Label, Start: w.Start, End: w.End,
				Reason: fmt.Sprintf("channel %q was not fitted", ch),
			}
		}
	}
	return nil
}

// Length returns the number of timepoints the window spans.
func (w TimeWindow) Length() int {
	return w.End - w.Start + 1
}

// Contains reports whether a timepoint falls inside the window.
func (w TimeWindow) Contains(timepoint int) bool {
	return timepoint >= w.Start && timepoint <= w.End
}
