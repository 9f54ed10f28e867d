// Package run records what one fitting run did and over what inputs. The
// manifest is the truth source for reproducibility: it must carry enough to
// tell whether two runs solved the same problem.
package run

import (
	"fmt"

	"rerp/domain/core"
)

// Manifest describes one completed (or aborted) fitting run: the design it
// solved, the solver's numerical readout, and tallies of how every
// (timepoint, channel) cell was handled.
type Manifest struct {
	RunID             core.RunID             `json:"run_id"`
	DesignFingerprint core.DesignFingerprint `json:"design_fingerprint"`
	Solver            string                 `json:"solver"`
	ConditionNumber   float64                `json:"condition_number"`
	Rank              int                    `json:"rank"`
	TrialCount        int                    `json:"trial_count"`
	ChannelCount      int                    `json:"channel_count"`
	TimepointCount    int                    `json:"timepoint_count"`
	Workers           int                    `json:"workers"`
	// TotalFits counts cells fitted on the full shared decomposition.
	TotalFits int `json:"total_fits"`
	// AdjustedFits counts cells fitted on a row-excluded decomposition.
	AdjustedFits int `json:"adjusted_fits"`
	// SkippedFits counts cells no decomposition could serve.
	SkippedFits int `json:"skipped_fits"`
	// ExcludedSamples sums the trial rows dropped for missing data over
	// all fits.
	ExcludedSamples int            `json:"excluded_samples"`
	Cancelled       bool           `json:"cancelled"`
	Fingerprint     RunFingerprint `json:"fingerprint"` // Determinism fingerprint
	Started         core.Timestamp `json:"started"`
	Finished        core.Timestamp `json:"finished"`
}

// NewManifest opens a manifest at run start. Tallies accumulate during the
// run; Finish closes it.
func NewManifest(runID core.RunID, designFingerprint core.DesignFingerprint,
	solver string, conditionNumber float64, rank int,
	trials, channels, timepoints, workers int) *Manifest {

	fingerprint := NewRunFingerprint(designFingerprint, solver, trials, channels, timepoints)

	return &Manifest{
		RunID:             runID,
		DesignFingerprint: designFingerprint,
		Solver:            solver,
		ConditionNumber:   conditionNumber,
		Rank:              rank,
		TrialCount:        trials,
		ChannelCount:      channels,
		TimepointCount:    timepoints,
		Workers:           workers,
		Fingerprint:       fingerprint,
		Started:           core.Now(),
	}
}

// Finish stamps the end of the run.
func (m *Manifest) Finish() {
	m.Finished = core.Now()
}

// FittedCells returns the number of cells carrying an estimate.
func (m *Manifest) FittedCells() int {
	return m.TotalFits + m.AdjustedFits
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("manifest", "run_id cannot be empty")
	}
	if m.DesignFingerprint == "" {
		return core.NewValidationError("manifest", "design_fingerprint cannot be empty")
	}
	if m.Solver == "" {
		return core.NewValidationError("manifest", "solver cannot be empty")
	}
	if m.TrialCount <= 0 || m.ChannelCount <= 0 || m.TimepointCount <= 0 {
		return core.NewValidationError("manifest", "geometry counts must be positive")
	}
	return nil
}

// Summary renders a one-line account of the run for logs.
func (m *Manifest) Summary() string {
	return fmt.Sprintf("run %s: %d/%d cells fitted (%d adjusted, %d skipped, %d samples excluded), solver %s cond %.3g",
		m.RunID, m.FittedCells(), m.TimepointCount*m.ChannelCount,
		m.AdjustedFits, m.SkippedFits, m.ExcludedSamples,
		m.Solver, m.ConditionNumber)
}
