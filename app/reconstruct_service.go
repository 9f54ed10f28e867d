package app

import (
	"sort"
	"strconv"
	"strings"

	"rerp/domain/design"
	"rerp/domain/estimate"
	"rerp/internal"
)

// ReconstructService evaluates fitted models at predictor assignments,
// turning coefficient estimates back into voltage waveforms. Raw predictor
// values pass through the transforms recorded on the design matrix, so
// callers speak in original units.
type ReconstructService struct {
	logger *internal.Logger
}

// NewReconstructService creates a reconstruct service.
func NewReconstructService() *ReconstructService {
	return &ReconstructService{
		logger: internal.DefaultLogger.Component("ReconstructService"),
	}
}

// Reconstruct returns the model-predicted waveform for one condition on one
// channel: at every timepoint, the encoded condition dotted with that
// timepoint's coefficients.
func (s *ReconstructService) Reconstruct(set *estimate.Set, cond design.Condition, channel string) (*estimate.Waveform, error) {
	return s.reconstruct(set, cond, channel, nil)
}

// ReconstructExcluding evaluates the condition with the named terms'
// contributions removed, isolating what the remaining terms predict.
// Interaction terms are their own names and are not excluded implicitly
// with a parent.
func (s *ReconstructService) ReconstructExcluding(set *estimate.Set, cond design.Condition, channel string, exclude []string) (*estimate.Waveform, error) {
	return s.reconstruct(set, cond, channel, exclude)
}

// ReconstructPartial evaluates only the named terms' contributions,
// isolating one component's share of the predicted waveform.
func (s *ReconstructService) ReconstructPartial(set *estimate.Set, cond design.Condition, channel string, include []string) (*estimate.Waveform, error) {
	if len(include) == 0 {
		return nil, &design.DesignSpecificationError{Reason: "at least one term is required"}
	}
	matrix := set.Design()
	keep := make(map[int]bool, len(include))
	for _, name := range include {
		j, ok := matrix.TermIndex(name)
		if !ok {
			return nil, &design.DesignSpecificationError{Predictor: name, Reason: "term not in the fitted model"}
		}
		keep[j] = true
	}

	vec, err := matrix.Encode(cond)
	if err != nil {
		return nil, err
	}
	for j := range vec {
		if !keep[j] {
			vec[j] = 0
		}
	}

	label := conditionLabel(cond) + " (" + strings.Join(include, " + ") + ")"
	return s.evaluate(set, vec, channel, label)
}

// Difference reconstructs both conditions and subtracts the minus waveform
// from the plus waveform, the model's estimated effect.
func (s *ReconstructService) Difference(set *estimate.Set, plus, minus design.Condition, channel string) (*estimate.Waveform, error) {
	a, err := s.Reconstruct(set, plus, channel)
	if err != nil {
		return nil, err
	}
	b, err := s.Reconstruct(set, minus, channel)
	if err != nil {
		return nil, err
	}
	return estimate.Difference(a, b)
}

func (s *ReconstructService) reconstruct(set *estimate.Set, cond design.Condition, channel string, exclude []string) (*estimate.Waveform, error) {
	matrix := set.Design()
	vec, err := matrix.Encode(cond)
	if err != nil {
		return nil, err
	}
	for _, name := range exclude {
		j, ok := matrix.TermIndex(name)
		if !ok {
			return nil, &design.DesignSpecificationError{Predictor: name, Reason: "term not in the fitted model"}
		}
		vec[j] = 0
	}

	label := conditionLabel(cond)
	if len(exclude) > 0 {
		label += " without " + strings.Join(exclude, ", ")
	}
	return s.evaluate(set, vec, channel, label)
}

// evaluate dots the resolved term weights with every timepoint's
// coefficients on one channel.
func (s *ReconstructService) evaluate(set *estimate.Set, vec []float64, channel, label string) (*estimate.Waveform, error) {
	chIdx, err := set.ChannelIndex(channel)
	if err != nil {
		return nil, err
	}

	voltages := make([]float64, set.Timepoints())
	for t := 0; t < set.Timepoints(); t++ {
		est, err := set.AtIndex(t, chIdx)
		if err != nil {
			return nil, err
		}
		voltages[t], err = est.ContrastAmplitude(vec)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Debug("reconstructed %q on %s over %d timepoints", label, channel, set.Timepoints())
	return &estimate.Waveform{Channel: channel, Label: label, Voltages: voltages}, nil
}

// conditionLabel renders a stable label from a condition's assignments when
// the analyst did not provide one.
func conditionLabel(cond design.Condition) string {
	if cond.Label != "" {
		return cond.Label
	}
	var parts []string
	for name, level := range cond.Categorical {
		parts = append(parts, name+"="+level)
	}
	for name, v := range cond.Continuous {
		parts = append(parts, name+"="+strconv.FormatFloat(v, 'g', -1, 64))
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return "reference"
	}
	return strings.Join(parts, ", ")
}
