package run

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"rerp/domain/core"
)

// RunFingerprint ties a run to the least-squares problem it solved. Two
// completed runs with the same fingerprint fitted the same design with the
// same solver over the same epoch geometry, so their estimates must agree.
type RunFingerprint struct {
	DesignFingerprint core.DesignFingerprint `json:"design_fingerprint"`
	Solver            string                 `json:"solver"`
	TrialCount        int                    `json:"trial_count"`
	ChannelCount      int                    `json:"channel_count"`
	TimepointCount    int                    `json:"timepoint_count"`
	Fingerprint       core.Hash              `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(designFingerprint core.DesignFingerprint, solver string,
	trials, channels, timepoints int) RunFingerprint {

	fingerprint := computeRunFingerprint(designFingerprint, solver, trials, channels, timepoints)

	return RunFingerprint{
		DesignFingerprint: designFingerprint,
		Solver:            solver,
		TrialCount:        trials,
		ChannelCount:      channels,
		TimepointCount:    timepoints,
		Fingerprint:       fingerprint,
	}
}

// computeRunFingerprint generates deterministic hash from all determinism parameters
func computeRunFingerprint(designFingerprint core.DesignFingerprint, solver string,
	trials, channels, timepoints int) core.Hash {

	data := "design:" + string(designFingerprint) +
		"|solver:" + solver +
		"|trials:" + strconv.Itoa(trials) +
		"|channels:" + strconv.Itoa(channels) +
		"|timepoints:" + strconv.Itoa(timepoints)

	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}
