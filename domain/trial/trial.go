package trial

import (
	"math"

	"rerp/domain/core"
)

// Trial represents one experimental event: a voltage epoch sampled at every
// channel over a fixed peri-event window, plus the named predictor values
// describing the trial's condition and covariates. Immutable once recorded.
type Trial struct {
	// Item optionally identifies the stimulus item.
	Item string
	// Categorical maps predictor name to level, e.g. "condition" -> "related".
	Categorical map[string]string
	// Continuous maps predictor name to raw value, e.g. "cloze" -> 0.82.
	Continuous map[string]float64
	// Samples holds voltages in microvolts, one row per channel, one column
	// per timepoint. NaN marks a sample rejected at that timepoint.
	Samples [][]float64
}

// Level returns the trial's level for a categorical predictor.
func (tr Trial) Level(predictor string) (string, bool) {
	v, ok := tr.Categorical[predictor]
	return v, ok
}

// Value returns the trial's value for a continuous predictor.
func (tr Trial) Value(predictor string) (float64, bool) {
	v, ok := tr.Continuous[predictor]
	return v, ok
}

// validate checks the trial against the table geometry.
func (tr Trial) validate(channels, timepoints int) error {
	if len(tr.Samples) != channels {
		return core.NewValidationError("samples", "channel row count does not match table channels")
	}
	for _, row := range tr.Samples {
		if len(row) != timepoints {
			return core.NewValidationError("samples", "timepoint count mismatch in channel row")
		}
		for _, v := range row {
			if math.IsInf(v, 0) {
				return core.NewValidationError("samples", "infinite voltage sample")
			}
		}
	}
	for name := range tr.Categorical {
		if name == "" {
			return core.NewValidationError("categorical", "empty predictor name")
		}
		if _, dup := tr.Continuous[name]; dup {
			return core.NewValidationError(name, "predictor is both categorical and continuous")
		}
	}
	for name := range tr.Continuous {
		if name == "" {
			return core.NewValidationError("continuous", "empty predictor name")
		}
		if v := tr.Continuous[name]; math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewValidationError(name, "continuous predictor value is not finite")
		}
	}
	return nil
}
