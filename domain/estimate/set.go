package estimate

import (
	"fmt"
	"math"
	"sync"

	"rerp/domain/core"
	"rerp/domain/design"
)

// SkippedFit records a (timepoint, channel) cell the engine could not fit,
// and why. Skips are reported alongside results, never silently dropped.
type SkippedFit struct {
	Timepoint int    `json:"timepoint"`
	Channel   string `json:"channel"`
	Reason    string `json:"reason"`
}

// Set is the write-once collection of coefficient estimates for one run:
// one cell per (timepoint, channel). A rerun produces a new set under a new
// run ID rather than revising this one.
type Set struct {
	runID      core.RunID
	matrix     *design.Matrix
	channels   []string
	timepoints int

	mu      sync.RWMutex
	grid    [][]*CoefficientEstimate // [timepoint][channel]
	skipped []SkippedFit
}

// NewSet allocates an empty estimate set for the given geometry.
func NewSet(runID core.RunID, matrix *design.Matrix, channels []string, timepoints int) (*Set, error) {
	if runID.String() == "" {
		return nil, core.NewValidationError("runID", "must not be empty")
	}
	if matrix == nil || matrix.TermCount() == 0 {
		return nil, core.NewValidationError("matrix", "design matrix is required")
	}
	if len(channels) == 0 {
		return nil, core.NewValidationError("channels", "at least one channel is required")
	}
	if timepoints <= 0 {
		return nil, core.NewValidationError("timepoints", "must be positive")
	}
	grid := make([][]*CoefficientEstimate, timepoints)
	for t := range grid {
		grid[t] = make([]*CoefficientEstimate, len(channels))
	}
	chs := make([]string, len(channels))
	copy(chs, channels)
	return &Set{
		runID:      runID,
		matrix:     matrix,
		channels:   chs,
		timepoints: timepoints,
		grid:       grid,
	}, nil
}

// RunID returns the owning run's identifier.
func (s *Set) RunID() core.RunID { return s.runID }

// Design returns the shared design matrix the set was fitted against.
func (s *Set) Design() *design.Matrix { return s.matrix }

// Channels returns the channel names in fit order.
func (s *Set) Channels() []string {
	out := make([]string, len(s.channels))
	copy(out, s.channels)
	return out
}

// Timepoints returns the number of timepoints per channel.
func (s *Set) Timepoints() int { return s.timepoints }

// ChannelIndex resolves a channel name.
func (s *Set) ChannelIndex(name string) (int, error) {
	for i, ch := range s.channels {
		if ch == name {
			return i, nil
		}
	}
	return -1, core.NewChannelNotFoundError(name)
}

// Put stores one fitted cell. Each cell may be written exactly once.
func (s *Set) Put(chIndex int, est *CoefficientEstimate) error {
	if est == nil {
		return core.NewValidationError("estimate", "must not be nil")
	}
	if est.Timepoint >= s.timepoints {
		return core.NewValidationError("timepoint", fmt.Sprintf("%d outside 0..%d", est.Timepoint, s.timepoints-1))
	}
	if chIndex < 0 || chIndex >= len(s.channels) {
		return core.NewChannelNotFoundError(fmt.Sprintf("index %d", chIndex))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid[est.Timepoint][chIndex] != nil {
		return core.NewValidationError("estimate", fmt.Sprintf("cell (%d, %s) already written", est.Timepoint, s.channels[chIndex]))
	}
	s.grid[est.Timepoint][chIndex] = est
	return nil
}

// AddSkipped records a cell the engine could not fit.
func (s *Set) AddSkipped(skip SkippedFit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, skip)
}

// At returns the estimate for (timepoint, channel name).
func (s *Set) At(timepoint int, channel string) (*CoefficientEstimate, error) {
	idx, err := s.ChannelIndex(channel)
	if err != nil {
		return nil, err
	}
	return s.AtIndex(timepoint, idx)
}

// AtIndex returns the estimate for (timepoint, channel index).
func (s *Set) AtIndex(timepoint, chIndex int) (*CoefficientEstimate, error) {
	if timepoint < 0 || timepoint >= s.timepoints {
		return nil, core.NewEstimateMissingError(timepoint, fmt.Sprintf("index %d", chIndex))
	}
	if chIndex < 0 || chIndex >= len(s.channels) {
		return nil, core.NewChannelNotFoundError(fmt.Sprintf("index %d", chIndex))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	est := s.grid[timepoint][chIndex]
	if est == nil {
		return nil, core.NewEstimateMissingError(timepoint, s.channels[chIndex])
	}
	return est, nil
}

// Skipped returns the cells that could not be fitted.
func (s *Set) Skipped() []SkippedFit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SkippedFit, len(s.skipped))
	copy(out, s.skipped)
	return out
}

// FittedCells returns the number of cells holding an estimate.
func (s *Set) FittedCells() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, row := range s.grid {
		for _, est := range row {
			if est != nil {
				count++
			}
		}
	}
	return count
}

// Complete reports whether every (timepoint, channel) cell was fitted.
func (s *Set) Complete() bool {
	return s.FittedCells() == s.timepoints*len(s.channels)
}

// CoefficientCurve returns one term's fitted coefficient across all
// timepoints of a channel: the term's temporal profile.
func (s *Set) CoefficientCurve(term, channel string) ([]float64, error) {
	j, ok := s.matrix.TermIndex(term)
	if !ok {
		return nil, &design.DesignSpecificationError{Predictor: term, Reason: "term not in the fitted model"}
	}
	idx, err := s.ChannelIndex(channel)
	if err != nil {
		return nil, err
	}
	curve := make([]float64, s.timepoints)
	for t := 0; t < s.timepoints; t++ {
		est, err := s.AtIndex(t, idx)
		if err != nil {
			return nil, err
		}
		curve[t] = est.Beta[j]
	}
	return curve, nil
}

// StandardErrorCurve returns one term's standard error across all
// timepoints of a channel, for confidence bands around the coefficient
// curve.
func (s *Set) StandardErrorCurve(term, channel string) ([]float64, error) {
	j, ok := s.matrix.TermIndex(term)
	if !ok {
		return nil, &design.DesignSpecificationError{Predictor: term, Reason: "term not in the fitted model"}
	}
	idx, err := s.ChannelIndex(channel)
	if err != nil {
		return nil, err
	}
	curve := make([]float64, s.timepoints)
	for t := 0; t < s.timepoints; t++ {
		est, err := s.AtIndex(t, idx)
		if err != nil {
			return nil, err
		}
		curve[t] = est.StdErr[j]
	}
	return curve, nil
}

// ResidualCurve returns the root mean squared residual per timepoint on one
// channel, a fitted-versus-observed diagnostic waveform. Values near the
// recording's noise level indicate the model is absorbing the structure it
// should.
func (s *Set) ResidualCurve(channel string) ([]float64, error) {
	idx, err := s.ChannelIndex(channel)
	if err != nil {
		return nil, err
	}
	curve := make([]float64, s.timepoints)
	for t := 0; t < s.timepoints; t++ {
		est, err := s.AtIndex(t, idx)
		if err != nil {
			return nil, err
		}
		rows := est.DF + len(est.Beta)
		curve[t] = math.Sqrt(est.RSS / float64(rows))
	}
	return curve, nil
}
