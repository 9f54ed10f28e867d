package window

import (
	"math"
	"sort"

	"rerp/domain/design"
)

// Contrast is a named linear combination of model coefficients. Exactly one
// of Weights or Between defines it: explicit per-term weights, or the
// difference between two encoded condition assignments.
type Contrast struct {
	Name string `json:"name"`
	// Weights assigns a coefficient to each named term. Terms not listed
	// weigh zero.
	Weights map[string]float64 `json:"weights,omitempty"`
	// Between resolves to encode(Plus) - encode(Minus).
	Between *ConditionDifference `json:"between,omitempty"`
}

// ConditionDifference defines a contrast as the difference between two
// predictor assignments, so "unrelated minus related" reads the way an
// analyst would say it.
type ConditionDifference struct {
	Plus  design.Condition `json:"plus"`
	Minus design.Condition `json:"minus"`
}

// Vector resolves the contrast into a weight per design matrix column.
func (c Contrast) Vector(m *design.Matrix) ([]float64, error) {
	if c.Name == "" {
		return nil, &UndefinedContrastError{Contrast: c.Name, Reason: "contrast name is required"}
	}
	switch {
	case c.Weights != nil && c.Between != nil:
		return nil, &UndefinedContrastError{Contrast: c.Name, Reason: "declare weights or a condition difference, not both"}
	case c.Weights != nil:
		return c.weightVector(m)
	case c.Between != nil:
		return c.differenceVector(m)
	default:
		return nil, &UndefinedContrastError{Contrast: c.Name, Reason: "contrast has no definition"}
	}
}

func (c Contrast) weightVector(m *design.Matrix) ([]float64, error) {
	names := make([]string, 0, len(c.Weights))
	for name := range c.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	vec := make([]float64, m.TermCount())
	for _, name := range names {
		j, ok := m.TermIndex(name)
		if !ok {
			return nil, &UndefinedContrastError{Contrast: c.Name, Term: name, Reason: "term not in the fitted model"}
		}
		w := c.Weights[name]
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, &UndefinedContrastError{Contrast: c.Name, Term: name, Reason: "weight is not finite"}
		}
		vec[j] = w
	}
	return vec, nil
}

func (c Contrast) differenceVector(m *design.Matrix) ([]float64, error) {
	plus, err := m.Encode(c.Between.Plus)
	if err != nil {
		return nil, err
	}
	minus, err := m.Encode(c.Between.Minus)
	if err != nil {
		return nil, err
	}
	vec := make([]float64, len(plus))
	for j := range vec {
		vec[j] = plus[j] - minus[j]
	}
	return vec, nil
}

// IsNullVector reports whether every weight in a resolved contrast is zero.
// A null contrast has amplitude zero with zero variance and cannot be
// tested.
func IsNullVector(vec []float64) bool {
	for _, w := range vec {
		if w != 0 {
			return false
		}
	}
	return true
}
