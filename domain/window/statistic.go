package window

import (
	"rerp/domain/core"
)

// WindowStatistic is one tested cell: a contrast's amplitude inside one
// time window on one channel, with its t test against zero.
type WindowStatistic struct {
	Window   string `json:"window"`
	Contrast string `json:"contrast"`
	Channel  string `json:"channel"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	// Amplitudes holds the per-timepoint contrast amplitude over Start..End.
	Amplitudes []float64 `json:"amplitudes"`
	// Mean is the window-mean amplitude, the quantity under test.
	Mean   float64 `json:"mean"`
	StdErr float64 `json:"std_err"`
	// DF is the smallest per-fit degrees of freedom inside the window.
	DF int     `json:"df"`
	T  float64 `json:"t"`
	P  float64 `json:"p"`
	// Q is the family-adjusted p-value.
	Q           float64 `json:"q"`
	Significant bool    `json:"significant"`
}

// Report is the outcome of one analysis call. Every cell it contains was
// corrected together as one family; the family id makes repeated analyses
// of the same cells identifiable.
type Report struct {
	ReportID   core.ReportID     `json:"report_id"`
	RunID      core.RunID        `json:"run_id"`
	FamilyID   core.FamilyID     `json:"family_id"`
	Method     Correction        `json:"method"`
	Alpha      float64           `json:"alpha"`
	FamilySize int               `json:"family_size"`
	Results    []WindowStatistic `json:"results"`
	CreatedAt  core.Timestamp    `json:"created_at"`
}

// SignificantCells returns the cells whose adjusted p-value clears the
// report's alpha.
func (r *Report) SignificantCells() []WindowStatistic {
	var out []WindowStatistic
	for _, s := range r.Results {
		if s.Significant {
			out = append(out, s)
		}
	}
	return out
}

// Cell looks up one (window, contrast, channel) result.
func (r *Report) Cell(window, contrast, channel string) (WindowStatistic, bool) {
	for _, s := range r.Results {
		if s.Window == window && s.Contrast == contrast && s.Channel == channel {
			return s, true
		}
	}
	return WindowStatistic{}, false
}
