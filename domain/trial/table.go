package trial

import (
	"fmt"
	"sort"

	"rerp/domain/core"
)

// Table is an ordered sequence of trials sharing one epoch geometry. Row
// order is authoritative: the design matrix built from a table uses the same
// order, and response vectors are extracted in it. Produced by an external
// loader; the engine treats it as read-only.
type Table struct {
	Channels   []string
	Timepoints int
	Trials     []Trial
}

// NewTable validates geometry and predictor consistency and returns a table.
func NewTable(channels []string, timepoints int, trials []Trial) (*Table, error) {
	if len(channels) == 0 {
		return nil, core.NewValidationError("channels", "at least one channel is required")
	}
	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if ch == "" {
			return nil, core.NewValidationError("channels", "empty channel name")
		}
		if seen[ch] {
			return nil, core.NewValidationError("channels", fmt.Sprintf("duplicate channel name %q", ch))
		}
		seen[ch] = true
	}
	if timepoints <= 0 {
		return nil, core.NewValidationError("timepoints", "must be positive")
	}
	if len(trials) == 0 {
		return nil, core.ErrEmptyTable
	}
	for i, tr := range trials {
		if err := tr.validate(len(channels), timepoints); err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
	}
	return &Table{Channels: channels, Timepoints: timepoints, Trials: trials}, nil
}

// MustNewTable panics on validation failure. Intended for tests and fixtures.
func MustNewTable(channels []string, timepoints int, trials []Trial) *Table {
	t, err := NewTable(channels, timepoints, trials)
	if err != nil {
		panic(err)
	}
	return t
}

// TrialCount returns the number of trials (design matrix rows).
func (t *Table) TrialCount() int {
	return len(t.Trials)
}

// ChannelCount returns the number of channels.
func (t *Table) ChannelCount() int {
	return len(t.Channels)
}

// ChannelIndex resolves a channel name to its row index.
func (t *Table) ChannelIndex(name string) (int, error) {
	for i, ch := range t.Channels {
		if ch == name {
			return i, nil
		}
	}
	return -1, core.NewChannelNotFoundError(name)
}

// Response extracts the voltage at (channel, timepoint) across all trials,
// in trial order. NaN entries mark trials rejected at that timepoint. The
// returned slice is a copy.
func (t *Table) Response(channel, timepoint int) []float64 {
	y := make([]float64, len(t.Trials))
	for i, tr := range t.Trials {
		y[i] = tr.Samples[channel][timepoint]
	}
	return y
}

// HasCategorical reports whether every trial defines the named categorical
// predictor.
func (t *Table) HasCategorical(name string) bool {
	for _, tr := range t.Trials {
		if _, ok := tr.Categorical[name]; !ok {
			return false
		}
	}
	return true
}

// HasContinuous reports whether every trial defines the named continuous
// predictor.
func (t *Table) HasContinuous(name string) bool {
	for _, tr := range t.Trials {
		if _, ok := tr.Continuous[name]; !ok {
			return false
		}
	}
	return true
}

// Levels returns the sorted distinct levels of a categorical predictor
// across all trials.
func (t *Table) Levels(name string) []string {
	set := make(map[string]bool)
	for _, tr := range t.Trials {
		if lvl, ok := tr.Categorical[name]; ok {
			set[lvl] = true
		}
	}
	levels := make([]string, 0, len(set))
	for lvl := range set {
		levels = append(levels, lvl)
	}
	sort.Strings(levels)
	return levels
}

// ContinuousValues returns the named continuous predictor across all trials,
// in trial order.
func (t *Table) ContinuousValues(name string) ([]float64, error) {
	values := make([]float64, len(t.Trials))
	for i, tr := range t.Trials {
		v, ok := tr.Continuous[name]
		if !ok {
			return nil, fmt.Errorf("trial %d: continuous predictor %q missing", i, name)
		}
		values[i] = v
	}
	return values, nil
}
